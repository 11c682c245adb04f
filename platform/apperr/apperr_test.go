package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("missing"), http.StatusNotFound},
		{CrossTenant("other tenant"), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{Unauthorized("nope"), http.StatusUnauthorized},
		{PartialFailure("half done", nil), http.StatusInternalServerError},
		{Transient("smtp down", nil), http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Errorf("kind %d: HTTPStatus() = %d, want %d", tc.err.Kind, got, tc.want)
		}
	}
}

func TestGetKindFollowsWrapping(t *testing.T) {
	inner := PartialFailure("sources not deleted", errors.New("conn reset"))
	wrapped := fmt.Errorf("merge: %w", inner)

	if !Is(wrapped, KindPartialFailure) {
		t.Fatalf("expected wrapped error to report KindPartialFailure, got %d", GetKind(wrapped))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected plain error to report KindUnknown")
	}
}
