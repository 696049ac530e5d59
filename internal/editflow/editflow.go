// Package editflow decides what a message edit triggers: a regeneration turn
// or a direct reconcile. It is a purely in-memory controller over an ordered
// message list; nothing here touches storage.
package editflow

import (
	"github.com/pkg/errors"
)

// Edit states of a single message.
type State int

const (
	StateUnedited State = iota
	StateEditing
	StateApplied
)

// Decision is what a saved edit requires of the caller.
type Decision int

const (
	// DecisionNone means no storage effect is needed.
	DecisionNone Decision = iota
	// DecisionReconcile means the caller must reconcile the current list
	// directly, with no generation.
	DecisionReconcile
	// DecisionRegenerate means the list was truncated at the edited message
	// and the caller must run a new turn with it; that turn's reconcile is
	// what commits the truncation.
	DecisionRegenerate
)

// Message is one entry of the client-held history. ID refers to the persisted
// row and goes stale after any reconcile.
type Message struct {
	ID      int32
	Role    string
	Content string

	state State
	draft string
}

// Controller owns the in-memory ordered message list for one conversation
// view.
type Controller struct {
	messages []Message
}

// New builds a controller over a snapshot of the persisted history.
func New(messages []Message) *Controller {
	msgs := make([]Message, len(messages))
	copy(msgs, messages)
	for i := range msgs {
		msgs[i].state = StateUnedited
		msgs[i].draft = ""
	}
	return &Controller{messages: msgs}
}

// History returns a copy of the current list in order.
func (c *Controller) History() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// State reports the edit state of the message at index i.
func (c *Controller) State(i int) (State, error) {
	if err := c.check(i); err != nil {
		return StateUnedited, err
	}
	return c.messages[i].state, nil
}

func (c *Controller) check(i int) error {
	if i < 0 || i >= len(c.messages) {
		return errors.Errorf("message index %d out of range", i)
	}
	return nil
}

// Begin starts editing message i, capturing its content as the draft. No
// storage effect.
func (c *Controller) Begin(i int) error {
	if err := c.check(i); err != nil {
		return err
	}
	m := &c.messages[i]
	if m.state == StateEditing {
		return errors.Errorf("message %d is already being edited", i)
	}
	m.state = StateEditing
	m.draft = m.Content
	return nil
}

// SetDraft replaces the in-progress draft for message i.
func (c *Controller) SetDraft(i int, content string) error {
	if err := c.check(i); err != nil {
		return err
	}
	m := &c.messages[i]
	if m.state != StateEditing {
		return errors.Errorf("message %d is not being edited", i)
	}
	m.draft = content
	return nil
}

// Cancel discards the draft for message i. No storage effect.
func (c *Controller) Cancel(i int) error {
	if err := c.check(i); err != nil {
		return err
	}
	m := &c.messages[i]
	if m.state != StateEditing {
		return errors.Errorf("message %d is not being edited", i)
	}
	m.state = StateUnedited
	m.draft = ""
	return nil
}

// Save applies the draft and decides the follow-up. An edited message that
// already has a model reply invalidates that reply: the list is truncated at
// the edit and the caller must regenerate. An edit of the unanswered tail
// only needs a direct reconcile.
func (c *Controller) Save(i int) (Decision, error) {
	if err := c.check(i); err != nil {
		return DecisionNone, err
	}
	m := &c.messages[i]
	if m.state != StateEditing {
		return DecisionNone, errors.Errorf("message %d is not being edited", i)
	}
	m.Content = m.draft
	m.state = StateApplied
	m.draft = ""

	if i+1 < len(c.messages) && c.messages[i+1].Role == "model" {
		c.messages = c.messages[:i+1]
		return DecisionRegenerate, nil
	}
	return DecisionReconcile, nil
}

// Delete removes message i from the list and returns it so the caller can
// delete the persisted row. Other messages are untouched.
func (c *Controller) Delete(i int) (Message, error) {
	if err := c.check(i); err != nil {
		return Message{}, err
	}
	removed := c.messages[i]
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
	return removed, nil
}
