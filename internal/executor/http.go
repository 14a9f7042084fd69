package executor

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/h2non/gentleman.v2"
	gctx "gopkg.in/h2non/gentleman.v2/context"
)

// HTTPExecutor posts the job spec to a remote production service and decodes
// its Result. The call is synchronous on the remote side.
type HTTPExecutor struct {
	cli  *gentleman.Client
	path string
}

// NewHTTPExecutor creates an executor posting to baseURL + "/jobs".
func NewHTTPExecutor(baseURL string) *HTTPExecutor {
	return &HTTPExecutor{
		cli:  gentleman.New().URL(baseURL),
		path: "/jobs",
	}
}

// Execute implements Executor.
func (h *HTTPExecutor) Execute(ctx context.Context, spec JobSpec) <-chan Result {
	return Func(h.post).Execute(ctx, spec)
}

func (h *HTTPExecutor) post(ctx context.Context, spec JobSpec) Result {
	req := h.cli.Request()
	req.AddPath(h.path)
	req.Method("POST")
	req.JSON(spec)
	// SetCancelContext keeps gentleman's per-request store on the new
	// context; replacing the http.Request context directly drops it.
	req.UseRequest(func(c *gctx.Context, next gctx.Handler) {
		next.Next(c.SetCancelContext(ctx))
	})

	resp, err := req.Send()
	if err != nil {
		return Failure(err)
	}
	defer resp.Close()
	if !resp.Ok {
		return Failure(fmt.Errorf("status %d: %s", resp.StatusCode, resp.String()))
	}

	var res Result
	if err := resp.JSON(&res); err != nil {
		return Failure(err)
	}
	if !res.Success && res.ErrorReason == "" {
		return Failure(errors.New("executor reported failure without reason"))
	}
	return res
}
