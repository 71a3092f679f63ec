package state

import "time"

// State represents one step of a conversation flow.
type State string

const (
	// StateIdle is both the initial and the resting state of every chat.
	StateIdle State = "idle"

	StateLoginAwaitingEmail State = "awaiting_email"
	StateLoginAwaitingOTP   State = "awaiting_otp"

	StateSendAwaitingRecipient State = "awaiting_recipient_email"
	StateSendAwaitingAmount    State = "awaiting_send_amount"
	StateSendAwaitingConfirm   State = "awaiting_send_confirmation"

	StateWalletAwaitingAddress State = "awaiting_wallet_address"
	StateWalletAwaitingNetwork State = "awaiting_wallet_network"
	StateWalletAwaitingAmount  State = "awaiting_wallet_amount"
	StateWalletAwaitingConfirm State = "awaiting_wallet_confirmation"

	StateBankAwaitingAccount State = "awaiting_bank_account"
	StateBankAwaitingAmount  State = "awaiting_bank_amount"
	StateBankAwaitingConfirm State = "awaiting_bank_confirmation"

	StateExternalAwaitingAddress State = "awaiting_external_wallet"
	StateExternalAwaitingNetwork State = "awaiting_external_wallet_network"
	StateExternalAwaitingAmount  State = "awaiting_external_wallet_amount"
	StateExternalAwaitingConfirm State = "awaiting_external_wallet_confirmation"
	StateExternalAwaitingFinal   State = "awaiting_final_withdrawal_confirmation"

	StateBulkAwaitingRecipients State = "awaiting_bulk_recipients"
	StateBulkAwaitingConfirm    State = "awaiting_bulk_confirmation"

	StatePayLinkAwaitingAmount  State = "awaiting_payment_link_amount"
	StatePayLinkAwaitingPurpose State = "awaiting_payment_link_purpose"
)

// Flow names a linear sequence of states accomplishing one user goal.
type Flow string

const (
	FlowNone           Flow = ""
	FlowLogin          Flow = "login"
	FlowSendEmail      Flow = "send_email"
	FlowSendWallet     Flow = "send_wallet"
	FlowWithdrawBank   Flow = "withdraw_bank"
	FlowWithdrawWallet Flow = "withdraw_wallet"
	FlowBulk           Flow = "bulk"
	FlowPaymentLink    Flow = "payment_link"
)

// flowSteps lists every flow's states in order. The first entry is the flow's entry state.
var flowSteps = map[Flow][]State{
	FlowLogin:          {StateLoginAwaitingEmail, StateLoginAwaitingOTP},
	FlowSendEmail:      {StateSendAwaitingRecipient, StateSendAwaitingAmount, StateSendAwaitingConfirm},
	FlowSendWallet:     {StateWalletAwaitingAddress, StateWalletAwaitingNetwork, StateWalletAwaitingAmount, StateWalletAwaitingConfirm},
	FlowWithdrawBank:   {StateBankAwaitingAccount, StateBankAwaitingAmount, StateBankAwaitingConfirm},
	FlowWithdrawWallet: {StateExternalAwaitingAddress, StateExternalAwaitingNetwork, StateExternalAwaitingAmount, StateExternalAwaitingConfirm, StateExternalAwaitingFinal},
	FlowBulk:           {StateBulkAwaitingRecipients, StateBulkAwaitingConfirm},
	FlowPaymentLink:    {StatePayLinkAwaitingAmount, StatePayLinkAwaitingPurpose},
}

var stateFlows = func() map[State]Flow {
	index := make(map[State]Flow)
	for flow, steps := range flowSteps {
		for _, st := range steps {
			index[st] = flow
		}
	}
	return index
}()

// FlowOf returns the flow owning s, or FlowNone for idle and unknown states.
func FlowOf(s State) Flow {
	return stateFlows[s]
}

// EntryState returns the first state of flow.
func EntryState(flow Flow) (State, bool) {
	steps, ok := flowSteps[flow]
	if !ok || len(steps) == 0 {
		return StateIdle, false
	}
	return steps[0], true
}

// All returns idle followed by every flow state, in a stable order.
func All() []State {
	flows := []Flow{FlowLogin, FlowSendEmail, FlowSendWallet, FlowWithdrawBank, FlowWithdrawWallet, FlowBulk, FlowPaymentLink}
	states := []State{StateIdle}
	for _, flow := range flows {
		states = append(states, flowSteps[flow]...)
	}
	return states
}

// IsActive reports whether s is a step of some flow.
func (s State) IsActive() bool {
	return FlowOf(s) != FlowNone
}

// ChatState captures the conversation position and collected data of one chat.
type ChatState struct {
	ChatID    int64     `json:"chat_id"`
	Current   State     `json:"current_state"`
	Context   TxContext `json:"context"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (s *ChatState) Clone() *ChatState {
	if s == nil {
		return nil
	}
	copied := *s
	copied.Context = s.Context.Clone()
	return &copied
}
