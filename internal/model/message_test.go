package model

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestCompare(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "c", CreatedAt: base.Add(time.Second)},
		{ID: "b", CreatedAt: base},
		{ID: "a", CreatedAt: base},
	}
	slices.SortFunc(msgs, Compare)

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if strings.Join(ids, ",") != "a,b,c" {
		t.Errorf("expected a,b,c got %v", ids)
	}
	if Compare(msgs[0], msgs[0]) != 0 {
		t.Error("expected a message to compare equal to itself")
	}
}

func TestNormalizeBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  error
	}{
		{"trimmed", "  hello \n", "hello", nil},
		{"blank", " \t\n ", "", ErrEmptyDraft},
		{"empty", "", "", ErrEmptyDraft},
		{"at limit", strings.Repeat("é", MaxBodyLength), strings.Repeat("é", MaxBodyLength), nil},
		{"too long", strings.Repeat("x", MaxBodyLength+1), "", ErrBodyTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBody(tt.in)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPrincipalValid(t *testing.T) {
	var nilPrincipal *Principal
	if nilPrincipal.Valid() {
		t.Error("nil principal must be invalid")
	}
	if (&Principal{Name: "alice"}).Valid() {
		t.Error("principal without user id must be invalid")
	}
	if !(&Principal{UserID: "u1"}).Valid() {
		t.Error("principal with user id must be valid")
	}
}

func TestPaginationHasMore(t *testing.T) {
	if !(Pagination{PageNumber: 1, TotalPages: 2}).HasMore() {
		t.Error("expected more pages")
	}
	if (Pagination{PageNumber: 2, TotalPages: 2}).HasMore() {
		t.Error("expected last page")
	}
	if (Pagination{PageNumber: 1, TotalPages: 0}).HasMore() {
		t.Error("expected empty history to have no more pages")
	}
}

func TestIsValidationError(t *testing.T) {
	if !IsValidationError(ErrEmptyDraft) || !IsValidationError(ErrSendInFlight) {
		t.Error("expected draft rejections to be validation errors")
	}
	if IsValidationError(&SendError{Err: errors.New("boom")}) {
		t.Error("send failures are not validation errors")
	}
}
