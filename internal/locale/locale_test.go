package locale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestResolve(t *testing.T) {
	assert.Equal(t, language.Danish, Resolve("da"))
	assert.Equal(t, language.Danish, Resolve("da_DK"))
	assert.Equal(t, language.German, Resolve("", "not a tag!", "de-AT"))
	assert.Equal(t, language.Norwegian, Resolve("nb"))
	assert.Equal(t, language.Norwegian, Resolve("nb_NO"))
	assert.Equal(t, language.Norwegian, Resolve("nn"))
	assert.Equal(t, language.Norwegian, Resolve("no"))
	assert.Equal(t, language.Danish, Resolve("da-DK"))
	assert.Equal(t, Default, Resolve("tlh"))
	assert.Equal(t, Default, Resolve())
}

func TestNowIsCapitalized(t *testing.T) {
	assert.Equal(t, "Just now", New("en").Now())
	assert.Equal(t, "Lige nu", New("da").Now())
	assert.Equal(t, "Gerade eben", New("de").Now())
}

func TestTimeDelta(t *testing.T) {
	en := New("en")
	day := 24 * time.Hour

	cases := []struct {
		d    time.Duration
		want string
	}{
		{3 * day, "in 3 days"},
		{-3 * day, "3 days ago"},
		{day, "in 1 day"},
		{21 * time.Hour, "in 1 day"},
		{20 * time.Hour, "in 20 hours"},
		{14 * day, "in 2 weeks"},
		{45 * time.Minute, "in 45 minutes"},
		{400 * day, "in 1 year"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, en.TimeDelta(tc.d), tc.d.String())
	}

	assert.Equal(t, en.Now(), en.TimeDelta(200*time.Millisecond))
	assert.Equal(t, "Just now", en.TimeDelta(-200*time.Millisecond))
}

func TestTimeDeltaLocalized(t *testing.T) {
	assert.Equal(t, "om 3 dage", New("da").TimeDelta(72*time.Hour))
	assert.Equal(t, "for 1 dag siden", New("da").TimeDelta(-24*time.Hour))
	assert.Equal(t, "in 2 Stunden", New("de").TimeDelta(2*time.Hour))
}

func TestDateTime(t *testing.T) {
	ts := time.Date(2024, 1, 10, 9, 5, 0, 0, time.UTC)

	assert.Equal(t, "Jan 10, 2024, 9:05 AM", New("en").DateTime(ts))
	assert.Equal(t, "10.01.2024, 09:05", New("de").DateTime(ts))
	assert.Contains(t, New("da").DateTime(ts), "09.05")
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	f := New("zz-invalid")
	assert.Equal(t, Default, f.Tag())
	assert.Equal(t, "in 2 days", f.TimeDelta(48*time.Hour))
}

func TestNorwegianPhrases(t *testing.T) {
	nb := New("nb")
	assert.Equal(t, language.Norwegian, nb.Tag())
	assert.Equal(t, New("no").TimeDelta(72*time.Hour), nb.TimeDelta(72*time.Hour))
	assert.NotEqual(t, New("da").Now(), nb.Now())
}

func TestSupported(t *testing.T) {
	codes := Supported()
	assert.Equal(t, "en", codes[0])
	assert.Contains(t, codes, "da")
	for _, code := range codes {
		assert.Equal(t, code, Resolve(code).String())
	}
}
