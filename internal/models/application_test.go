package models

import (
	"testing"
	"time"

	"soul-card-backend/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newApp(status ApplicationStatus) *Application {
	return &Application{
		ID:              "app-1",
		ProfileID:       "profile-1",
		TargetUserID:    "owner",
		ApplicantUserID: strPtr("applicant"),
		ApplicantWechat: "w1",
		Questions:       []string{"Q1", "Q2"},
		Answers:         []string{"a1", "a2"},
		Status:          status,
	}
}

var allStatuses = []ApplicationStatus{StatusPending, StatusFollowUp, StatusAnswered, StatusApproved, StatusRejected}

func TestStatus_Predicates(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, ApplicationStatus("archived").Valid())

	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusFollowUp.IsTerminal())
	assert.False(t, StatusAnswered.IsTerminal())

	assert.True(t, StatusPending.AwaitsOwner())
	assert.True(t, StatusAnswered.AwaitsOwner())
	assert.False(t, StatusFollowUp.AwaitsOwner())
}

func TestApproveReject_FromEachState(t *testing.T) {
	for _, from := range allStatuses {
		for _, action := range []string{"approve", "reject"} {
			t.Run(string(from)+"/"+action, func(t *testing.T) {
				app := newApp(from)
				var err error
				if action == "approve" {
					err = app.Approve("owner", strPtr("hi"), testNow)
				} else {
					err = app.Reject("owner", nil, testNow)
				}

				if from.AwaitsOwner() {
					require.NoError(t, err)
					if action == "approve" {
						assert.Equal(t, StatusApproved, app.Status)
						assert.Equal(t, "hi", *app.ReplyMessage)
					} else {
						assert.Equal(t, StatusRejected, app.Status)
						assert.Nil(t, app.ReplyMessage)
					}
					assert.Equal(t, testNow, app.UpdatedAt)
					return
				}
				assert.ErrorIs(t, err, ErrNotAwaitingOwner)
				assert.Equal(t, from, app.Status)
			})
		}
	}
}

func TestDecide_RequiresOwner(t *testing.T) {
	app := newApp(StatusPending)

	err := app.Approve("applicant", nil, testNow)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, StatusPending, app.Status)

	assert.ErrorIs(t, app.Reject("", nil, testNow), ErrNotOwner)
}

func TestAskFollowUp_OnlyFromPendingOrAnswered(t *testing.T) {
	for _, from := range allStatuses {
		t.Run(string(from), func(t *testing.T) {
			app := newApp(from)
			err := app.AskFollowUp("owner", []string{"Q3"}, testNow)
			if from.AwaitsOwner() {
				require.NoError(t, err)
				assert.Equal(t, StatusFollowUp, app.Status)
				assert.Equal(t, 1, app.FollowUps.Len())
				return
			}
			assert.ErrorIs(t, err, ErrNotAwaitingOwner)
			assert.Equal(t, from, app.Status)
			assert.Equal(t, 0, app.FollowUps.Len())
		})
	}
}

func TestAskFollowUp_Validation(t *testing.T) {
	app := newApp(StatusPending)

	assert.ErrorIs(t, app.AskFollowUp("owner", nil, testNow), ErrNoQuestions)
	assert.ErrorIs(t, app.AskFollowUp("owner", []string{"  ", ""}, testNow), ErrNoQuestions)
	assert.ErrorIs(t, app.AskFollowUp("owner", []string{"1", "2", "3", "4", "5", "6"}, testNow), ErrTooManyQuestions)
	assert.ErrorIs(t, app.AskFollowUp("applicant", []string{"Q"}, testNow), ErrNotOwner)
	assert.Equal(t, StatusPending, app.Status)

	require.NoError(t, app.AskFollowUp("owner", []string{" Q3 ", "", "Q4"}, testNow))
	last, ok := app.FollowUps.Last()
	require.True(t, ok)
	assert.Equal(t, []string{"Q3", "Q4"}, last.Questions)
	assert.Empty(t, last.Answers)
	assert.NotNil(t, last.Answers)
	assert.Equal(t, testNow, last.CreatedAt)
}

func TestAnswerFollowUp(t *testing.T) {
	app := newApp(StatusPending)
	require.NoError(t, app.AskFollowUp("owner", []string{"Q3"}, testNow))

	assert.ErrorIs(t, app.AnswerFollowUp("owner", []string{"a3"}, testNow), ErrNotApplicant)
	assert.ErrorIs(t, app.AnswerFollowUp("applicant", []string{" "}, testNow), ErrEmptyAnswer)

	err := app.AnswerFollowUp("applicant", []string{"a3", "extra"}, testNow)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, StatusFollowUp, app.Status)

	require.NoError(t, app.AnswerFollowUp("applicant", []string{" a3 "}, testNow))
	assert.Equal(t, StatusAnswered, app.Status)
	assert.Equal(t, []string{"a3"}, app.FollowUps[0].Answers)

	// a second answer without a new round is rejected
	assert.ErrorIs(t, app.AnswerFollowUp("applicant", []string{"again"}, testNow), ErrNotAwaitingAnswer)
}

func TestAnswerFollowUp_TargetsLastRoundOnly(t *testing.T) {
	app := newApp(StatusPending)
	require.NoError(t, app.AskFollowUp("owner", []string{"Q3"}, testNow))
	require.NoError(t, app.AnswerFollowUp("applicant", []string{"a3"}, testNow))
	require.NoError(t, app.AskFollowUp("owner", []string{"Q4", "Q5"}, testNow))

	require.NoError(t, app.AnswerFollowUp("applicant", []string{"a4", "a5"}, testNow))

	assert.Equal(t, []string{"a3"}, app.FollowUps[0].Answers)
	assert.Equal(t, []string{"a4", "a5"}, app.FollowUps[1].Answers)
}

func TestAnswerFollowUp_AnonymousApplicantNeedsToken(t *testing.T) {
	app := newApp(StatusPending)
	app.ApplicantUserID = nil
	app.AccessTokenHash = HashAccessToken("secret")
	require.NoError(t, app.AskFollowUp("owner", []string{"Q3"}, testNow))

	assert.ErrorIs(t, app.AnswerFollowUp("", []string{"a3"}, testNow), ErrNotApplicant)
	assert.ErrorIs(t, app.AnswerFollowUpWithToken("guess", []string{"a3"}, testNow), ErrNotApplicant)
	assert.ErrorIs(t, app.AnswerFollowUpWithToken("", []string{"a3"}, testNow), ErrNotApplicant)
	assert.Equal(t, StatusFollowUp, app.Status)

	require.NoError(t, app.AnswerFollowUpWithToken("secret", []string{"a3"}, testNow))
	assert.Equal(t, StatusAnswered, app.Status)
}

func TestHoldsAccessToken(t *testing.T) {
	app := newApp(StatusPending)
	assert.False(t, app.HoldsAccessToken(""), "no token stored")
	assert.False(t, app.HoldsAccessToken("anything"), "no token stored")

	app.AccessTokenHash = HashAccessToken("t0k")
	assert.True(t, app.HoldsAccessToken("t0k"))
	assert.False(t, app.HoldsAccessToken("T0K"))
	assert.NotEqual(t, "t0k", app.AccessTokenHash)
}

func TestAnswerFollowUp_WrongState(t *testing.T) {
	for _, from := range []ApplicationStatus{StatusPending, StatusAnswered, StatusApproved, StatusRejected} {
		app := newApp(from)
		assert.ErrorIs(t, app.AnswerFollowUp("applicant", []string{"x"}, testNow), ErrNotAwaitingAnswer, from)
	}
}

func TestFollowUpLog_SetAnswersBounds(t *testing.T) {
	var log FollowUpLog
	assert.Error(t, log.SetAnswers(0, nil))

	idx := log.Append([]string{"Q"}, testNow)
	assert.Equal(t, 0, idx)
	assert.Error(t, log.SetAnswers(1, []string{"a"}))
	assert.Error(t, log.SetAnswers(-1, []string{"a"}))
	require.NoError(t, log.SetAnswers(0, []string{"a"}))
	assert.Equal(t, []string{"a"}, log[0].Answers)

	_, ok := FollowUpLog(nil).Last()
	assert.False(t, ok)
}

func TestRedacted_MasksUntilApproved(t *testing.T) {
	for _, s := range allStatuses {
		app := newApp(s)
		app.ApplicantEmail = "a@b.c"
		app.ApplicantPhone = "7"

		view := app.Redacted()
		if s == StatusApproved {
			assert.Equal(t, "w1", view.ApplicantWechat)
			assert.Equal(t, "a@b.c", view.ApplicantEmail)
			assert.Equal(t, "7", view.ApplicantPhone)
			continue
		}
		assert.NotEqual(t, app.ApplicantWechat, view.ApplicantWechat, s)
		assert.NotEqual(t, app.ApplicantEmail, view.ApplicantEmail, s)
		assert.NotEqual(t, app.ApplicantPhone, view.ApplicantPhone, s)
		assert.Equal(t, "**", view.ApplicantWechat)
		assert.Equal(t, "*****", view.ApplicantEmail)
		assert.Equal(t, "**", view.ApplicantPhone)
		// stored value untouched
		assert.Equal(t, "w1", app.ApplicantWechat)
	}
}

func TestMaskContact(t *testing.T) {
	assert.Equal(t, "", MaskContact(""))
	assert.Equal(t, "**", MaskContact("x"))
	assert.Equal(t, "****", MaskContact("微信号码"))

	for _, stored := range []string{"*", "**", "***"} {
		assert.NotEqual(t, stored, MaskContact(stored), stored)
	}
	assert.Equal(t, "***", MaskContact("**"))
}

func TestWalkthrough(t *testing.T) {
	app := &Application{
		TargetUserID:    "U1",
		ApplicantWechat: "w1",
		AccessTokenHash: HashAccessToken("guest-token"),
		Questions:       []string{"Q1", "Q2"},
		Answers:         []string{"a1", "a2"},
		Status:          StatusPending,
	}

	require.NoError(t, app.AskFollowUp("U1", []string{"Q3"}, testNow))
	assert.Equal(t, StatusFollowUp, app.Status)
	assert.Equal(t, FollowUpLog{{Questions: []string{"Q3"}, Answers: []string{}, CreatedAt: testNow}}, app.FollowUps)
	assert.Equal(t, "**", app.Redacted().ApplicantWechat)

	require.NoError(t, app.AnswerFollowUpWithToken("guest-token", []string{"a3"}, testNow))
	assert.Equal(t, []string{"a3"}, app.FollowUps[0].Answers)
	assert.Equal(t, StatusAnswered, app.Status)

	require.NoError(t, app.Approve("U1", nil, testNow))
	assert.Equal(t, "w1", app.Redacted().ApplicantWechat)

	assert.ErrorIs(t, app.AskFollowUp("U1", []string{"Q"}, testNow), ErrNotAwaitingOwner)
	assert.ErrorIs(t, app.Reject("U1", nil, testNow), ErrNotAwaitingOwner)
}
