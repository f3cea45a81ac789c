package tools

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func eligibilitySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"loan_amount": map[string]any{"type": "number"},
		},
		"required": []any{"loan_amount"},
	}
}

func TestInvokeRejectsInvalidParams(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Tool{
		Name:        "check_eligibility",
		InputSchema: eligibilitySchema(),
		Run: func(ctx context.Context, input map[string]any) (Output, error) {
			return Output{Content: []ContentBlock{{Type: "json", Content: "ok"}}}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err = r.Invoke(context.Background(), "sess-1", "check_eligibility", map[string]any{})
	if err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestInvokeRunsValidCall(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{
		Name:        "check_eligibility",
		InputSchema: eligibilitySchema(),
		Run: func(ctx context.Context, input map[string]any) (Output, error) {
			return Output{Content: []ContentBlock{{Type: "json", Content: `{"eligible":true,"max_amount":450000}`}}}, nil
		},
	})

	out, err := r.Invoke(context.Background(), "sess-1", "check_eligibility", map[string]any{"loan_amount": 500000.0})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(out.Content) != 1 || out.Content[0].Content == "" {
		t.Fatalf("expected one content block, got %+v", out.Content)
	}
}

func TestInvokeIsSerializedPerSession(t *testing.T) {
	r := NewRegistry()
	var concurrent int32
	var maxConcurrent int32
	r.Register(Tool{
		Name:        "slow_tool",
		InputSchema: map[string]any{"type": "object"},
		Run: func(ctx context.Context, input map[string]any) (Output, error) {
			n := atomic.AddInt32(&concurrent, 1)
			if n > atomic.LoadInt32(&maxConcurrent) {
				atomic.StoreInt32(&maxConcurrent, n)
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
			return Output{}, nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Invoke(context.Background(), "same-session", "slow_tool", map[string]any{})
		}()
	}
	wg.Wait()

	if maxConcurrent > 1 {
		t.Fatalf("expected tool calls within a session to serialize, saw %d concurrent", maxConcurrent)
	}
}

func TestInvokeUnknownToolIsNonFatal(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "sess-1", "nonexistent", map[string]any{})
	if err == nil {
		t.Fatal("expected an error for an unregistered tool")
	}
	var toolErr *Error
	if !asToolError(err, &toolErr) {
		t.Fatalf("expected a *tools.Error, got %T", err)
	}
}

func asToolError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
