package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/whitelist/internal/lifecycle"
	"github.com/garnizeh/whitelist/pkg/discord"
	"github.com/garnizeh/whitelist/pkg/fault"
	"github.com/garnizeh/whitelist/pkg/models"
	"github.com/garnizeh/whitelist/pkg/repository/mock"
)

type fakeMedia struct {
	mu       sync.Mutex
	uploads  map[string]string
	deleted  []string
	failKeys map[string]bool
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{uploads: map[string]string{}, failKeys: map[string]bool{}}
}

func (f *fakeMedia) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKeys[key] {
		return "", errors.New("cdn unavailable")
	}
	b, _ := io.ReadAll(r)
	f.uploads[key] = string(b)
	return "https://cdn.test/whitelist-applications/" + key + ".webm", nil
}

func (f *fakeMedia) Delete(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type fakeOracle struct {
	member bool
	err    error
}

func (f *fakeOracle) IsGuildMember(ctx context.Context, userID string) (bool, error) {
	return f.member, f.err
}

type fakeNotifier struct {
	added   []string
	removed []string
	dms     []discord.Embed
	roleErr error
	dmErr   error
}

func (f *fakeNotifier) AddRole(ctx context.Context, userID string) error {
	f.added = append(f.added, userID)
	return f.roleErr
}

func (f *fakeNotifier) RemoveRole(ctx context.Context, userID string) error {
	f.removed = append(f.removed, userID)
	return f.roleErr
}

func (f *fakeNotifier) SendDM(ctx context.Context, userID string, embed discord.Embed) error {
	f.dms = append(f.dms, embed)
	return f.dmErr
}

type fakeAnnouncer struct {
	resubmitted []bool
}

func (f *fakeAnnouncer) Announce(ctx context.Context, app models.Application, resubmitted bool) error {
	f.resubmitted = append(f.resubmitted, resubmitted)
	return nil
}

type fixture struct {
	svc       *lifecycle.Service
	store     *mock.Store
	media     *fakeMedia
	oracle    *fakeOracle
	notifier  *fakeNotifier
	announcer *fakeAnnouncer
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     mock.NewStore(),
		media:     newFakeMedia(),
		oracle:    &fakeOracle{member: true},
		notifier:  &fakeNotifier{},
		announcer: &fakeAnnouncer{},
	}
	f.svc = lifecycle.New(lifecycle.Deps{
		Questions:    f.store,
		Applications: f.store,
		Media:        f.media,
		Members:      f.oracle,
		Notifier:     f.notifier,
		Announcer:    f.announcer,
		ServerName:   "Blocky",
		Now:          func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) question(t *testing.T, text string, typ models.QuestionType, required bool) models.Question {
	t.Helper()
	q := &models.Question{Text: text, Type: typ, Required: required}
	require.NoError(t, f.store.CreateQuestion(context.Background(), q))
	return *q
}

func (f *fixture) submit(t *testing.T, applicant string, text map[string]string) *models.Application {
	t.Helper()
	res, err := f.svc.Submit(context.Background(), lifecycle.SubmitInput{ApplicantID: applicant, ApplicantName: "Alice", Text: text})
	require.NoError(t, err)
	return res.Application
}

var admin = lifecycle.Reviewer{ID: "admin-1", Name: "Mod"}

func TestSubmit_TextOnly(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)

	res, err := f.svc.Submit(context.Background(), lifecycle.SubmitInput{
		ApplicantID:   "u1",
		ApplicantName: "Alice",
		Text:          map[string]string{q1.ID: "hello"},
	})
	require.NoError(t, err)

	app := res.Application
	assert.Equal(t, models.StatusPending, app.Status)
	require.Len(t, app.Answers, 1)
	assert.Equal(t, "hello", *app.Answers[0].TextAnswer)
	assert.Nil(t, app.Answers[0].AudioURL)
	assert.Equal(t, []lifecycle.Effect{{Action: lifecycle.ActionAnnounce, OK: true}}, res.Effects)
	assert.Equal(t, []bool{false}, f.announcer.resubmitted)

	stored, err := f.store.ListAnswers(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSubmit_BlankOptionalProducesNoAnswer(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	q2 := f.question(t, "Q2", models.QuestionTextarea, false)

	app := f.submit(t, "u1", map[string]string{q1.ID: "hi", q2.ID: "   "})
	require.Len(t, app.Answers, 1)
	assert.Equal(t, q1.ID, app.Answers[0].QuestionID)
}

func TestSubmit_Guards(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(f *fixture)
		text    string
		kind    fault.Kind
	}{
		{"NotMember", func(f *fixture) { f.oracle.member = false }, "hi", fault.Forbidden},
		{"MembershipLookupFails", func(f *fixture) { f.oracle.err = errors.New("discord down") }, "hi", fault.Upstream},
		{"RequiredMissing", func(f *fixture) {}, "   ", fault.Validation},
		{"StoreFails", func(f *fixture) { f.store.CreateErr = errors.New("db down") }, "hi", fault.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			q1 := f.question(t, "Q1", models.QuestionText, true)
			tc.prepare(f)

			_, err := f.svc.Submit(context.Background(), lifecycle.SubmitInput{ApplicantID: "u1", Text: map[string]string{q1.ID: tc.text}})
			require.Error(t, err)
			assert.Equal(t, tc.kind, fault.KindOf(err), "got %v", err)
		})
	}
}

func TestSubmit_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), lifecycle.SubmitInput{})
	assert.True(t, fault.Is(err, fault.Unauthorized))
}

func TestSubmit_SecondPendingRejected(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	f.submit(t, "u1", map[string]string{q1.ID: "hello"})

	_, err := f.svc.Submit(context.Background(), lifecycle.SubmitInput{ApplicantID: "u1", Text: map[string]string{q1.ID: "again"}})
	assert.True(t, fault.Is(err, fault.Conflict), "got %v", err)

	apps, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestSubmit_AudioUpload(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	q2 := f.question(t, "Intro", models.QuestionAudio, true)

	res, err := f.svc.Submit(context.Background(), lifecycle.SubmitInput{
		ApplicantID: "u1",
		Text:        map[string]string{q1.ID: "hi"},
		Audio:       map[string]lifecycle.AudioBlob{q2.ID: {ContentType: "audio/webm", Data: strings.NewReader("voice")}},
	})
	require.NoError(t, err)

	key := res.Application.ID + "_" + q2.ID
	assert.Equal(t, "voice", f.media.uploads[key])
	require.Len(t, res.Application.Answers, 2)
	audio := res.Application.Answers[1]
	require.NotNil(t, audio.AudioURL)
	assert.Equal(t, "https://cdn.test/whitelist-applications/"+key+".webm", *audio.AudioURL)
}

func TestSubmit_UploadFailureAbortsAndCleansUp(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "A1", models.QuestionAudio, true)
	q2 := f.question(t, "A2", models.QuestionAudio, true)
	// fail every key ending with the second question id
	failing := &failingMedia{fakeMedia: f.media, suffix: "_" + q2.ID}
	svc := lifecycle.New(lifecycle.Deps{Questions: f.store, Applications: f.store, Media: failing, Members: f.oracle, Notifier: f.notifier})

	_, err := svc.Submit(context.Background(), lifecycle.SubmitInput{
		ApplicantID: "u1",
		Audio: map[string]lifecycle.AudioBlob{
			q1.ID: {ContentType: "audio/webm", Data: strings.NewReader("one")},
			q2.ID: {ContentType: "audio/webm", Data: strings.NewReader("two")},
		},
	})
	require.Error(t, err)
	assert.Equal(t, fault.Internal, fault.KindOf(err))
	require.Len(t, f.media.deleted, 1)
	assert.True(t, strings.HasSuffix(f.media.deleted[0], "_"+q1.ID+".webm"))

	apps, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)
}

type failingMedia struct {
	*fakeMedia
	suffix string
}

func (m *failingMedia) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if strings.HasSuffix(key, m.suffix) {
		return "", errors.New("cdn unavailable")
	}
	return m.fakeMedia.Upload(ctx, key, contentType, r)
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	app := f.submit(t, "u1", map[string]string{q1.ID: "hi"})

	res, err := f.svc.Approve(context.Background(), app.ID, admin)
	require.NoError(t, err)

	got := res.Application
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "Mod", *got.ReviewedBy)
	assert.Equal(t, "admin-1", *got.ReviewedByID)
	assert.Equal(t, fixedNow.UnixMilli(), *got.ReviewedAt)
	assert.Equal(t, []string{"u1"}, f.notifier.added)
	require.Len(t, f.notifier.dms, 1)
	assert.Equal(t, "Application Approved!", f.notifier.dms[0].Title)
	assert.Contains(t, f.notifier.dms[0].Description, "**Blocky**")
	assert.Equal(t, []lifecycle.Effect{
		{Action: lifecycle.ActionGrantRole, OK: true},
		{Action: lifecycle.ActionNotify, OK: true},
	}, res.Effects)
}

func TestApprove_SideEffectFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	app := f.submit(t, "u1", map[string]string{q1.ID: "hi"})
	f.notifier.roleErr = errors.New("missing permissions")
	f.notifier.dmErr = errors.New("dms closed")

	res, err := f.svc.Approve(context.Background(), app.ID, admin)
	require.NoError(t, err)
	for _, e := range res.Effects {
		assert.False(t, e.OK)
		assert.NotEmpty(t, e.Error)
	}

	stored, err := f.store.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestDeny_WithReason(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	app := f.submit(t, "u1", map[string]string{q1.ID: "hi"})

	res, err := f.svc.Deny(context.Background(), app.ID, "incomplete", admin)
	require.NoError(t, err)

	got := res.Application
	assert.Equal(t, models.StatusDenied, got.Status)
	assert.Equal(t, "incomplete", *got.DenialReason)
	assert.Nil(t, got.RevisionReason)
	assert.Empty(t, got.RevisionQuestionIDs)
	require.NotNil(t, got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)
	assert.Equal(t, []string{"u1"}, f.notifier.removed)
	require.Len(t, f.notifier.dms, 1)
	assert.Equal(t, "Application Denied", f.notifier.dms[0].Title)
	assert.Contains(t, f.notifier.dms[0].Description, "**Reason:** incomplete")
}

func TestDecisions_OnlyFromOpenStates(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	ctx := context.Background()

	approved := f.submit(t, "u1", map[string]string{q1.ID: "hi"})
	_, err := f.svc.Approve(ctx, approved.ID, admin)
	require.NoError(t, err)

	denied := f.submit(t, "u2", map[string]string{q1.ID: "hi"})
	_, err = f.svc.Deny(ctx, denied.ID, "", admin)
	require.NoError(t, err)

	for _, id := range []string{approved.ID, denied.ID} {
		_, err = f.svc.Approve(ctx, id, admin)
		assert.True(t, fault.Is(err, fault.Conflict), "approve: %v", err)
		_, err = f.svc.Deny(ctx, id, "", admin)
		assert.True(t, fault.Is(err, fault.Conflict), "deny: %v", err)
		_, err = f.svc.RequestRevision(ctx, id, "", []string{q1.ID}, admin)
		assert.True(t, fault.Is(err, fault.Conflict), "revision: %v", err)
	}

	_, err = f.svc.Approve(ctx, "ghost", admin)
	assert.True(t, fault.Is(err, fault.NotFound))
}

func TestRequestRevision(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "First", models.QuestionText, true)
	q2 := f.question(t, "Second", models.QuestionText, true)
	app := f.submit(t, "u1", map[string]string{q1.ID: "a", q2.ID: "b"})
	ctx := context.Background()

	_, err := f.svc.RequestRevision(ctx, app.ID, "why", nil, admin)
	assert.True(t, fault.Is(err, fault.Validation))
	_, err = f.svc.RequestRevision(ctx, app.ID, "why", []string{"ghost"}, admin)
	assert.True(t, fault.Is(err, fault.Validation))

	res, err := f.svc.RequestRevision(ctx, app.ID, "more detail", []string{q2.ID, q1.ID}, admin)
	require.NoError(t, err)
	got := res.Application
	assert.Equal(t, models.StatusRevision, got.Status)
	assert.Equal(t, "more detail", *got.RevisionReason)
	assert.Equal(t, []string{q1.ID, q2.ID}, got.RevisionQuestionIDs, "stored in catalog order")
	assert.Nil(t, got.DenialReason)

	require.Len(t, f.notifier.dms, 1)
	desc := f.notifier.dms[0].Description
	assert.Less(t, strings.Index(desc, "First"), strings.Index(desc, "Second"))
	assert.Contains(t, desc, "more detail")

	// only pending applications can be sent back
	_, err = f.svc.RequestRevision(ctx, app.ID, "again", []string{q1.ID}, admin)
	assert.True(t, fault.Is(err, fault.Conflict))

	// revision can still be approved
	res, err = f.svc.Approve(ctx, app.ID, admin)
	require.NoError(t, err)
	assert.Nil(t, res.Application.RevisionReason)
	assert.Empty(t, res.Application.RevisionQuestionIDs)
}

func TestResubmitRevision(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	q2 := f.question(t, "Q2", models.QuestionText, true)
	q3 := f.question(t, "Voice", models.QuestionAudio, false)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, lifecycle.SubmitInput{
		ApplicantID: "u1",
		Text:        map[string]string{q1.ID: "one", q2.ID: "two"},
		Audio:       map[string]lifecycle.AudioBlob{q3.ID: {ContentType: "audio/webm", Data: strings.NewReader("v1")}},
	})
	require.NoError(t, err)
	app := res.Application
	oldAudio := *app.Answers[2].AudioURL

	_, err = f.svc.RequestRevision(ctx, app.ID, "redo", []string{q1.ID, q3.ID}, admin)
	require.NoError(t, err)

	res, err = f.svc.ResubmitRevision(ctx, lifecycle.SubmitInput{
		ApplicantID: "u1",
		// q2 is not flagged and must not change
		Text:  map[string]string{q1.ID: "one, revised", q2.ID: "sneaky"},
		Audio: map[string]lifecycle.AudioBlob{q3.ID: {ContentType: "audio/webm", Data: strings.NewReader("v2")}},
	})
	require.NoError(t, err)

	got := res.Application
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.RevisionReason)
	assert.Empty(t, got.RevisionQuestionIDs)
	assert.Nil(t, got.ReviewedBy)
	assert.Nil(t, got.ReviewedByID)
	assert.Nil(t, got.ReviewedAt)
	assert.Equal(t, []string{q1.ID, q3.ID}, got.RevisedQuestionIDs)

	answers := map[string]models.Answer{}
	for _, a := range got.Answers {
		answers[a.QuestionID] = a
	}
	assert.Equal(t, "one, revised", *answers[q1.ID].TextAnswer)
	assert.Equal(t, "two", *answers[q2.ID].TextAnswer)
	require.NotNil(t, answers[q3.ID].AudioURL)
	assert.NotEqual(t, oldAudio, *answers[q3.ID].AudioURL)

	assert.Equal(t, []string{oldAudio}, f.media.deleted)
	assert.Equal(t, []bool{false, true}, f.announcer.resubmitted)
	assert.Equal(t, []lifecycle.Effect{
		{Action: lifecycle.ActionDeleteReplace, OK: true},
		{Action: lifecycle.ActionAnnounce, OK: true},
	}, res.Effects)
}

func TestResubmitRevision_CreatesMissingAnswerAndAccumulates(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	q2 := f.question(t, "Optional", models.QuestionText, false)
	ctx := context.Background()
	app := f.submit(t, "u1", map[string]string{q1.ID: "one"})

	_, err := f.svc.RequestRevision(ctx, app.ID, "", []string{q2.ID}, admin)
	require.NoError(t, err)
	res, err := f.svc.ResubmitRevision(ctx, lifecycle.SubmitInput{ApplicantID: "u1", Text: map[string]string{q2.ID: "now answered"}})
	require.NoError(t, err)
	require.Len(t, res.Application.Answers, 2)

	_, err = f.svc.RequestRevision(ctx, app.ID, "", []string{q1.ID, q2.ID}, admin)
	require.NoError(t, err)
	res, err = f.svc.ResubmitRevision(ctx, lifecycle.SubmitInput{ApplicantID: "u1", Text: map[string]string{q1.ID: "uno"}})
	require.NoError(t, err)
	assert.Equal(t, []string{q2.ID, q1.ID}, res.Application.RevisedQuestionIDs)
}

func TestResubmitRevision_WithoutRevision(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	f.submit(t, "u1", map[string]string{q1.ID: "one"})

	_, err := f.svc.ResubmitRevision(context.Background(), lifecycle.SubmitInput{ApplicantID: "u1", Text: map[string]string{q1.ID: "x"}})
	assert.True(t, fault.Is(err, fault.Conflict), "got %v", err)
}

func TestDelete_AllowsFreshSubmit(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	app := f.submit(t, "u1", map[string]string{q1.ID: "one"})
	ctx := context.Background()

	require.NoError(t, f.svc.Delete(ctx, app.ID))
	assert.True(t, fault.Is(f.svc.Delete(ctx, app.ID), fault.NotFound))

	mine, err := f.svc.Mine(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, mine)

	f.submit(t, "u1", map[string]string{q1.ID: "fresh"})
}

func TestReview_Dispatch(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	app := f.submit(t, "u1", map[string]string{q1.ID: "one"})
	ctx := context.Background()

	_, err := f.svc.Review(ctx, app.ID, lifecycle.ReviewInput{Status: models.StatusPending}, admin)
	assert.True(t, fault.Is(err, fault.Validation))

	res, err := f.svc.Review(ctx, app.ID, lifecycle.ReviewInput{Status: models.StatusDenied, DenialReason: "  spam "}, admin)
	require.NoError(t, err)
	assert.Equal(t, "spam", *res.Application.DenialReason)
}

func TestMine_ReturnsLatest(t *testing.T) {
	f := newFixture(t)
	q1 := f.question(t, "Q1", models.QuestionText, true)
	ctx := context.Background()

	first := f.submit(t, "u1", map[string]string{q1.ID: "one"})
	_, err := f.svc.Deny(ctx, first.ID, "", admin)
	require.NoError(t, err)
	second := f.submit(t, "u1", map[string]string{q1.ID: "two"})

	mine, err := f.svc.Mine(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, second.ID, mine.ID)
	require.Len(t, mine.Answers, 1)
	assert.Equal(t, "two", *mine.Answers[0].TextAnswer)
}
