package gh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewStatusError_Mapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusUnprocessableEntity, ErrUnprocessable},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusBadGateway, ErrServer},
		{http.StatusServiceUnavailable, ErrServer},
		{http.StatusGatewayTimeout, ErrServer},
	}

	for _, tt := range tests {
		err := NewStatusError("op", tt.status)
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err.Kind)
		}
	}
}

func TestClassify_TransientStatuses(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		if got := Classify(NewStatusError("op", status)); got != ClassTransient {
			t.Errorf("status %d: expected transient, got %s", status, got)
		}
	}
}

func TestClassify_FatalStatuses(t *testing.T) {
	for _, status := range []int{401, 403, 404, 422} {
		if got := Classify(NewStatusError("op", status)); got != ClassFatal {
			t.Errorf("status %d: expected fatal, got %s", status, got)
		}
	}
}

func TestClassify_TimeoutIsTransient(t *testing.T) {
	err := WrapTransportError("op", context.DeadlineExceeded)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected timeout kind, got %v", err)
	}
	if Classify(err) != ClassTransient {
		t.Error("timeouts must classify as transient")
	}
}

func TestClassify_NetworkErrorIsTransient(t *testing.T) {
	err := WrapTransportError("op", errors.New("connection reset by peer"))
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("expected network kind, got %v", err)
	}
	if Classify(err) != ClassTransient {
		t.Error("network errors must classify as transient")
	}
}

func TestClassify_UnknownDefaultsToTransient(t *testing.T) {
	if Classify(fmt.Errorf("something odd")) != ClassTransient {
		t.Error("unrecognized errors must default to transient")
	}
}

func TestAPIError_UnwrapChain(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := WrapTransportError("search", inner)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected *APIError in chain")
	}
	if apiErr.Op != "search" {
		t.Errorf("expected op search, got %q", apiErr.Op)
	}
	if !errors.Is(err, inner) {
		t.Error("underlying error must stay in the chain")
	}
}

func TestWrapTransportError_Nil(t *testing.T) {
	if WrapTransportError("op", nil) != nil {
		t.Error("nil error must wrap to nil")
	}
}
