package session

import "sync"

// followThreshold is the distance (in px) from the bottom of the message
// list within which new messages still auto-scroll the view.
const followThreshold = 100

// Follow decides whether a message arrival should scroll the view to the
// bottom. A user who scrolled up to read history must not be yanked back
// down, so the decision uses the flag as it was when the message arrived.
type Follow struct {
	mu     sync.Mutex
	follow bool
}

// NewFollow starts in follow mode, matching a freshly opened conversation.
func NewFollow() *Follow {
	return &Follow{follow: true}
}

// Observe records the current viewport scroll state.
func (f *Follow) Observe(scrollTop, scrollHeight, clientHeight float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.follow = scrollHeight-scrollTop-clientHeight < followThreshold
}

// ShouldAutoFollow reports whether the view is close enough to the bottom
// to keep following new messages.
func (f *Follow) ShouldAutoFollow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.follow
}

// OnNewMessage invokes scrollToBottom only if the follow flag was set at
// the moment the message arrived.
func (f *Follow) OnNewMessage(scrollToBottom func()) {
	f.mu.Lock()
	follow := f.follow
	f.mu.Unlock()
	if follow && scrollToBottom != nil {
		scrollToBottom()
	}
}

// OnConversationSwitch forces follow mode and scrolls to the bottom once
// the new conversation is hydrated.
func (f *Follow) OnConversationSwitch(scrollToBottom func()) {
	f.mu.Lock()
	f.follow = true
	f.mu.Unlock()
	if scrollToBottom != nil {
		scrollToBottom()
	}
}
