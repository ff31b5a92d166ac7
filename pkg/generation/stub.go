package generation

import "context"

const StubPrefix = "Echo: "

// Stub echoes the last user message. It never charges the quota.
type Stub struct{}

func NewStub() Stub {
	return Stub{}
}

func (Stub) Generate(_ context.Context, req Request) (string, error) {
	last := req.LastUserMessage
	if last == "" {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == RoleUser {
				last = req.Messages[i].Content
				break
			}
		}
	}
	return StubPrefix + last, nil
}
