package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/vietddude/deepwiki/internal/infra/rpc/provider"
	"github.com/vietddude/deepwiki/internal/infra/rpc/timeout"
)

type fakeTimeout struct{}

func (fakeTimeout) Error() string   { return "i/o timeout" }
func (fakeTimeout) Timeout() bool   { return true }
func (fakeTimeout) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"429", &provider.StatusError{StatusCode: 429}, KindRateLimit, true},
		{"404", &provider.StatusError{StatusCode: 404}, KindNotFound, false},
		{"400", &provider.StatusError{StatusCode: 400}, KindValidation, false},
		{"422", &provider.StatusError{StatusCode: 422}, KindValidation, false},
		{"408", &provider.StatusError{StatusCode: 408}, KindTimeout, true},
		{"401", &provider.StatusError{StatusCode: 401}, KindUnknown, false},
		{"409", &provider.StatusError{StatusCode: 409}, KindUnknown, false},
		{"500", &provider.StatusError{StatusCode: 500}, KindServer, true},
		{"503 wrapped", fmt.Errorf("status: %w", &provider.StatusError{StatusCode: 503}), KindServer, true},
		{"too large", fmt.Errorf("status response exceeds 8 bytes: %w", provider.ErrResponseTooLarge), KindServer, false},
		{"malformed", &provider.DecodeError{Op: "status", Err: errors.New("bad")}, KindUnknown, false},
		{"pool", fmt.Errorf("get: %w", timeout.ErrPoolTimeout), KindTimeout, true},
		{"deadline", context.DeadlineExceeded, KindTimeout, true},
		{"net timeout", &net.OpError{Op: "read", Err: fakeTimeout{}}, KindTimeout, true},
		{"cancelled", fmt.Errorf("do: %w", context.Canceled), KindUnknown, false},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindServer, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindServer, true},
		{"eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), KindServer, true},
		{"other", errors.New("boom"), KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.kind || got.Retryable != tt.retryable {
				t.Errorf("Classify(%v) = %s retryable=%v, want %s retryable=%v",
					tt.err, got.Kind, got.Retryable, tt.kind, tt.retryable)
			}
			if got.Suggestion == "" {
				t.Error("every classified error must carry a suggestion")
			}
			// The raw error stays reachable for logging.
			if !errors.Is(got, tt.err) {
				t.Errorf("cause not preserved for %v", tt.err)
			}
		})
	}
}

func TestClassify_RetryAfterCarried(t *testing.T) {
	got := Classify(&provider.StatusError{StatusCode: 429, RetryAfter: 4 * time.Second})
	if got.RetryAfter != 4*time.Second {
		t.Errorf("RetryAfter = %s", got.RetryAfter)
	}
	if got.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", got.StatusCode)
	}
}

func TestClassify_PassesThroughStructured(t *testing.T) {
	orig := Validation("question too short")
	if got := Classify(fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("expected the same *Error back, got %v", got)
	}
	if Classify(nil) != nil || From(nil) != nil {
		t.Error("nil must stay nil")
	}
}

func TestError_IsByKind(t *testing.T) {
	err := fmt.Errorf("poll: %w", New(KindTimeout, "query q-1 timed out"))
	if !errors.Is(err, ErrTimeout) {
		t.Error("expected errors.Is to match by kind")
	}
	if errors.Is(err, ErrServer) {
		t.Error("kinds must not cross-match")
	}
}

func TestError_JSONHidesCause(t *testing.T) {
	e := Classify(&provider.StatusError{StatusCode: 502, Body: "secret upstream trace"})
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "secret upstream trace") {
		t.Errorf("raw transport detail leaked: %s", data)
	}

	var back Error
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Kind != KindServer || !back.Retryable || back.Suggestion == "" {
		t.Errorf("unexpected round trip %+v", back)
	}
}
