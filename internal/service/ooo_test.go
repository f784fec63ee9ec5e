package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/model"
)

var (
	oooAlice = &model.User{ID: "user-1", Name: "Alice", Email: "alice@blockful.io", IsActive: true}
	oooBob   = &model.User{ID: "user-2", Name: "Bob", Email: "bob@blockful.io", IsActive: true}
)

func newTestOOOService() (*OOOService, *fakeOOORepo) {
	repo := newFakeOOORepo()
	return NewOOOService(repo, discardLogger()), repo
}

func validOOOInput() OOOInput {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	return OOOInput{
		StartDate:        start,
		EndDate:          start.AddDate(0, 0, 14),
		Reason:           "Vacation",
		Message:          "Back mid July",
		EmergencyContact: "+55 11 99999-0000",
	}
}

// ===== Create =====

func TestOOOCreate(t *testing.T) {
	svc, repo := newTestOOOService()

	o, err := svc.Create(context.Background(), oooAlice, validOOOInput())
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, oooAlice.ID, o.UserID)
	assert.Equal(t, "Alice", o.UserName)
	assert.Equal(t, "alice@blockful.io", o.UserEmail)
	assert.True(t, o.Active, "active defaults to true")
	assert.Len(t, repo.records, 1)
}

func TestOOOCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*OOOInput)
		wantMsg string
	}{
		{"missing reason", func(in *OOOInput) { in.Reason = "  " }, "reason is required"},
		{"missing message", func(in *OOOInput) { in.Message = "" }, "message is required"},
		{"missing start", func(in *OOOInput) { in.StartDate = time.Time{} }, "Invalid start date"},
		{"end before start", func(in *OOOInput) { in.EndDate = in.StartDate.Add(-time.Hour) }, "End date must be after start date"},
		{"end equals start", func(in *OOOInput) { in.EndDate = in.StartDate }, "End date must be after start date"},
		{"message too long", func(in *OOOInput) { in.Message = strings.Repeat("x", MaxOOOTextLength+1) }, "reason and message must be 2000 characters or less"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestOOOService()
			in := validOOOInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), oooAlice, in)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Empty(t, repo.records)
		})
	}
}

func TestOOOCreate_StoreFailure(t *testing.T) {
	svc, repo := newTestOOOService()
	repo.err = errStoreDown

	_, err := svc.Create(context.Background(), oooAlice, validOOOInput())
	assert.ErrorIs(t, err, errStoreDown)
}

// ===== Visibility =====

func seedOOO(t *testing.T, svc *OOOService, author *model.User, active bool) *model.OOO {
	t.Helper()
	in := validOOOInput()
	in.Active = &active
	o, err := svc.Create(context.Background(), author, in)
	require.NoError(t, err)
	return o
}

func TestOOOList_AnonymousSeesActiveOnly(t *testing.T) {
	svc, _ := newTestOOOService()
	seedOOO(t, svc, oooAlice, true)
	seedOOO(t, svc, oooBob, false)

	list, err := svc.List(context.Background(), nil, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Active)
	assert.Empty(t, list[0].EmergencyContact, "contact is hidden from anonymous callers")

	inactive := false
	list, err = svc.List(context.Background(), nil, &inactive, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOOOList_AuthenticatedSeesAll(t *testing.T) {
	svc, _ := newTestOOOService()
	seedOOO(t, svc, oooAlice, true)
	seedOOO(t, svc, oooBob, false)

	list, err := svc.List(context.Background(), oooAlice, nil, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	for _, o := range list {
		assert.NotEmpty(t, o.EmergencyContact)
	}

	inactive := false
	list, err = svc.List(context.Background(), oooAlice, &inactive, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, oooBob.ID, list[0].UserID)
}

func TestOOOList_Pagination(t *testing.T) {
	svc, _ := newTestOOOService()
	for range 5 {
		seedOOO(t, svc, oooAlice, true)
	}

	list, err := svc.List(context.Background(), oooAlice, nil, 2, 4)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = svc.List(context.Background(), oooAlice, nil, 1000, -3)
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

func TestOOOGet(t *testing.T) {
	svc, _ := newTestOOOService()
	active := seedOOO(t, svc, oooAlice, true)
	inactive := seedOOO(t, svc, oooAlice, false)
	ctx := context.Background()

	o, err := svc.Get(ctx, nil, active.ID)
	require.NoError(t, err)
	assert.Empty(t, o.EmergencyContact)

	_, err = svc.Get(ctx, nil, inactive.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	o, err = svc.Get(ctx, oooBob, inactive.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, o.EmergencyContact)

	_, err = svc.Get(ctx, oooBob, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// ===== Ownership =====

func TestOOOUpdate_Owner(t *testing.T) {
	svc, repo := newTestOOOService()
	o := seedOOO(t, svc, oooAlice, true)

	updated, err := svc.Update(context.Background(), oooAlice, o.ID, OOOPatch{
		Active:  ptr(false),
		Message: ptr("Back in August"),
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "Back in August", updated.Message)
	assert.Equal(t, "Vacation", updated.Reason)
	assert.Equal(t, "Back in August", repo.records[o.ID].Message)
}

func TestOOOUpdate_NotOwner(t *testing.T) {
	svc, repo := newTestOOOService()
	o := seedOOO(t, svc, oooAlice, true)

	_, err := svc.Update(context.Background(), oooBob, o.ID, OOOPatch{Message: ptr("hijacked")})
	require.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, "You can only modify your own OOO records", err.Error())
	assert.Equal(t, "Back mid July", repo.records[o.ID].Message)
}

func TestOOOUpdate_RevalidatesDates(t *testing.T) {
	svc, _ := newTestOOOService()
	o := seedOOO(t, svc, oooAlice, true)

	_, err := svc.Update(context.Background(), oooAlice, o.ID, OOOPatch{
		EndDate: ptr(o.StartDate.Add(-24 * time.Hour)),
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestOOODelete(t *testing.T) {
	svc, repo := newTestOOOService()
	o := seedOOO(t, svc, oooAlice, true)

	err := svc.Delete(context.Background(), oooBob, o.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Len(t, repo.records, 1)

	require.NoError(t, svc.Delete(context.Background(), oooAlice, o.ID))
	assert.Empty(t, repo.records)

	err = svc.Delete(context.Background(), oooAlice, o.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
