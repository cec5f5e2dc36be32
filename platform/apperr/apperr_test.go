package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:     http.StatusBadRequest,
		KindCollision:      http.StatusConflict,
		KindPersistence:    http.StatusInternalServerError,
		KindReconciliation: http.StatusUnprocessableEntity,
		KindNotFound:       http.StatusNotFound,
		KindUnauthorized:   http.StatusUnauthorized,
	}
	for kind, want := range cases {
		if got := New(kind, "x").HTTPStatus(); got != want {
			t.Fatalf("kind %s: expected status %d, got %d", kind, want, got)
		}
	}
}

func TestGetKindFollowsWrappedChain(t *testing.T) {
	base := Collision("file name already used")
	wrapped := fmt.Errorf("create batch: %w", base)

	if !Is(wrapped, KindCollision) {
		t.Fatalf("expected wrapped error to be a collision, got %s", GetKind(wrapped))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected plain error to be unknown kind")
	}
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := Validation("missing columns").WithOp("ingest")
	if err.Error() != "ingest: missing columns" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
