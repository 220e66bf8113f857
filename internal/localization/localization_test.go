package localization_test

import (
	"anonchat/backend/internal/engine"
	"anonchat/backend/internal/localization"
	"anonchat/backend/internal/models"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalizer(t *testing.T) *localization.Localizer {
	t.Helper()
	fsys := fstest.MapFS{
		"en.json":   {Data: []byte(`{"hello": "Hello", "warning": "Warning %d of %d", "error_not_in_chat": "Not in chat", "error_insufficient_balance": "Need %d, have %d", "error_internal": "Oops"}`)},
		"uk.json":   {Data: []byte(`{"hello": "Привіт"}`)},
		"notes.txt": {Data: []byte("ignored")},
	}
	l, err := localization.NewLocalizer(fsys, "en")
	require.NoError(t, err)
	return l
}

func TestGetString(t *testing.T) {
	l := newTestLocalizer(t)

	assert.Equal(t, "Привіт", l.GetString("uk", "hello"))
	assert.Equal(t, "Warning 1 of 3", l.Format("uk", "warning", 1, 3))
	assert.Equal(t, "Hello", l.GetString("de", "hello"))
	assert.Equal(t, "missing_key", l.GetString("en", "missing_key"))
	assert.Equal(t, []string{"en", "uk"}, l.Languages())
}

func TestNewLocalizer_MissingFallback(t *testing.T) {
	_, err := localization.NewLocalizer(fstest.MapFS{"uk.json": {Data: []byte(`{}`)}}, "en")
	assert.Error(t, err)
}

func TestRenderError(t *testing.T) {
	l := newTestLocalizer(t)

	assert.Equal(t, "Not in chat", l.RenderError("en", engine.ErrNotInChat))
	assert.Equal(t, "Need 100, have 7", l.RenderError("en", &engine.BalanceError{Required: 100, Balance: 7}))
	assert.Equal(t, "Oops", l.RenderError("en", errors.New("db down")))
}

func TestDefaultLocalizer_CoversEveryNotice(t *testing.T) {
	l, err := localization.NewDefaultLocalizer("ru")
	require.NoError(t, err)

	kinds := []models.NoticeKind{
		models.NoticeSearchWaiting, models.NoticeSearchTimeout, models.NoticeSearchCancelled, models.NoticeMatched,
		models.NoticeChatEndedSelf, models.NoticeChatEndedPartner, models.NoticeChatEndedPartnerBanned,
		models.NoticeChatEndedAdmin, models.NoticeChatEndedTimeout, models.NoticeChatEndedError,
		models.NoticeRevealOffer, models.NoticeRevealNames, models.NoticeRevealDeclined,
		models.NoticeWarning, models.NoticeBanned, models.NoticeUnbanned,
		models.NoticeBalanceCredited, models.NoticeBalanceDebited, models.NoticeReferralReward,
	}
	for _, lang := range l.Languages() {
		for _, k := range kinds {
			text := l.RenderNotice(lang, models.Notice{Kind: k, Name: "Bob", Count: 1, Limit: 3, Amount: 10, Balance: 20})
			assert.NotEqual(t, string(k), text, "%s/%s", lang, k)
			assert.NotContains(t, text, "%!", "%s/%s", lang, k)
		}
	}
	assert.Equal(t, []string{"en", "ru", "uk"}, l.Languages())
}

func TestRenderNotice_Relay(t *testing.T) {
	l := newTestLocalizer(t)

	text := l.RenderNotice("en", models.Notice{Kind: models.NoticeRelay, Content: &models.Content{Type: models.ContentText, Text: "hi"}})

	assert.Equal(t, "hi", text)
}
