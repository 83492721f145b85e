// Package toolgate is the Go client for the toolgate HTTP gateway. Every
// method maps to one endpoint; a policy refusal comes back as an *APIError
// carrying the gateway's kind and class, so a caller can tell "blocked by
// policy" from "broken transport" without string matching.
//
// Usage:
//
//	tg := toolgate.New(toolgate.WithBaseURL("http://127.0.0.1:8085"))
//	res, err := tg.FSRead(ctx, "/tmp/toolgate/notes.txt", 0)
//	var apiErr *toolgate.APIError
//	if errors.As(err, &apiErr) && apiErr.Refused() {
//	    // policy said no
//	}
//
// External users import github.com/ppiankov/toolgate/sdk/go/toolgate.
package toolgate
