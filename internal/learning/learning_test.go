package learning

import (
	"testing"
	"time"

	"github.com/rewired-gh/crashoracle/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

// history builds outcomes from a W/L string, one second apart, seq 1..n.
func history(results string) []models.Outcome {
	out := make([]models.Outcome, len(results))
	for i, r := range results {
		out[i] = models.Outcome{
			ID:         "o",
			AccountID:  "acc",
			Seq:        int64(i + 1),
			IsWin:      r == 'W',
			Multiplier: decimal.NewFromInt(2),
			Timestamp:  t0.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func cfgWith(mutate func(c *Config)) Config {
	c := DefaultConfig()
	mutate(&c)
	return c
}

func TestLearn_SingleWindowScenario(t *testing.T) {
	cfg := cfgWith(func(c *Config) { c.MinOccurrences = 1 })

	res, err := Learn(history("WWWWWWL"), models.NewPatternBook(), cfg)
	require.NoError(t, err)

	assert.False(t, res.Insufficient)
	assert.Equal(t, 1, res.Windows)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, models.PatternKey("GGGGGG"), res.Ranked[0].Key)
	assert.Equal(t, 1, res.Ranked[0].Occurrences)
	assert.Equal(t, 0, res.Ranked[0].Wins)
	assert.Equal(t, 0.0, res.Ranked[0].WinRate)
	assert.Empty(t, res.Top, "a zero win rate never reaches the table")

	st, ok := res.Book.Lookup("GGGGGG")
	require.True(t, ok)
	assert.Equal(t, t0.Add(6*time.Second), st.LastSeen)
}

func TestLearn_InsufficientHistory(t *testing.T) {
	prior := models.NewPatternBook()
	prior.Stats["GGGGGG"] = models.PatternStat{Key: "GGGGGG", Occurrences: 9, Wins: 3}

	res, err := Learn(history("WWWWWW"), prior, DefaultConfig())
	require.NoError(t, err)

	assert.True(t, res.Insufficient)
	assert.Zero(t, res.Windows)
	assert.NotNil(t, res.Ranked)
	assert.NotNil(t, res.Top)
	assert.Empty(t, res.Top)
	assert.Equal(t, prior.Stats, res.Book.Stats)
}

func TestLearn_MinOccurrencesBoundary(t *testing.T) {
	cfg := DefaultConfig() // length 6, min 5

	// 10 wins give 4 windows of GGGGGG.
	res, err := Learn(history(repeat("W", 10)), models.NewPatternBook(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Book.Stats["GGGGGG"].Occurrences)
	assert.Empty(t, res.Ranked, "min-1 occurrences must not be ranked")

	// 11 wins give exactly 5.
	res, err = Learn(history(repeat("W", 11)), models.NewPatternBook(), cfg)
	require.NoError(t, err)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, 5, res.Ranked[0].Occurrences)
	assert.Equal(t, 1.0, res.Ranked[0].WinRate)
	require.Len(t, res.Top, 1)
	assert.Equal(t, models.SourceTop, res.Top[0].Source)
	assert.Equal(t, "G", res.Top[0].ExpectedResult)
}

func TestRank_OrderAndTieBreaks(t *testing.T) {
	book := models.NewPatternBook()
	for _, st := range []models.PatternStat{
		{Key: "GGGGGG", Occurrences: 10, Wins: 8}, // 0.8
		{Key: "BGBGBG", Occurrences: 5, Wins: 4},  // 0.8
		{Key: "GBGBGB", Occurrences: 10, Wins: 9}, // 0.9
		{Key: "BBBBBB", Occurrences: 5, Wins: 4},  // 0.8
		{Key: "GGGBBB", Occurrences: 5, Wins: 3},  // 0.6
		{Key: "BBBGGG", Occurrences: 4, Wins: 4},  // filtered
	} {
		book.Stats[st.Key] = st
	}

	ranked := Rank(book, 5)
	keys := make([]models.PatternKey, len(ranked))
	for i, rp := range ranked {
		keys[i] = rp.Key
		assert.Equal(t, i+1, rp.Rank)
		assert.Equal(t, SourceLearned, rp.Source)
	}
	assert.Equal(t, []models.PatternKey{"GBGBGB", "GGGGGG", "BBBBBB", "BGBGBG", "GGGBBB"}, keys)

	top := TopN(ranked, 0.80, 17)
	assert.Len(t, top, 4, "0.6 is below the table threshold")

	top = TopN(ranked, 0.80, 2)
	require.Len(t, top, 2)
	assert.Equal(t, models.PatternKey("GBGBGB"), top[0].Key)
	assert.Equal(t, models.PatternKey("GGGGGG"), top[1].Key)
	assert.Equal(t, 2, top[1].Rank)

	assert.Empty(t, TopN(ranked, 0.80, 0))
	assert.NotNil(t, TopN(ranked, 0.80, 0))
}

func TestLearn_RecomputeIsIdempotent(t *testing.T) {
	h := history("WWLWLLWWWLWLWWLLLWWLWWWLWLLWWLWWWWLWLW")
	cfg := cfgWith(func(c *Config) { c.PatternLength = 3; c.MinOccurrences = 2 })

	first, err := Learn(h, models.NewPatternBook(), cfg)
	require.NoError(t, err)
	second, err := Learn(h, first.Book, cfg)
	require.NoError(t, err)

	assert.Equal(t, first.Book, second.Book)
	assert.Equal(t, first.Ranked, second.Ranked)
	assert.Equal(t, first.Top, second.Top)
}

func TestLearn_RecomputeDropsPriorCounts(t *testing.T) {
	prior := models.NewPatternBook()
	prior.Stats["GGGGGG"] = models.PatternStat{Key: "GGGGGG", Occurrences: 100, Wins: 1}

	res, err := Learn(history(repeat("W", 11)), prior, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Book.Stats["GGGGGG"].Occurrences)
	assert.Equal(t, 100, prior.Stats["GGGGGG"].Occurrences, "prior book must not be mutated")
}

func TestLearn_AccumulateDeduplicatesRuns(t *testing.T) {
	cfg := cfgWith(func(c *Config) { c.MergePolicy = MergeAccumulate })
	h := history(repeat("W", 11))

	first, err := Learn(h, models.NewPatternBook(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Windows)
	assert.Equal(t, int64(11), first.Book.LastSeq)

	again, err := Learn(h, first.Book, cfg)
	require.NoError(t, err)
	assert.Zero(t, again.Windows, "re-running over the same history must add nothing")
	assert.Equal(t, first.Book, again.Book)

	grown, err := Learn(history(repeat("W", 12)), again.Book, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, grown.Windows)
	assert.Equal(t, 6, grown.Book.Stats["GGGGGG"].Occurrences)
	assert.Equal(t, 6, grown.Book.Stats["GGGGGG"].Wins)
	assert.Equal(t, 5, first.Book.Stats["GGGGGG"].Occurrences, "prior book must not be mutated")
}

func TestLearn_AccumulateKeepsRotatedEvidence(t *testing.T) {
	cfg := cfgWith(func(c *Config) { c.MergePolicy = MergeAccumulate })
	full := history(repeat("W", 11))

	first, err := Learn(full, models.NewPatternBook(), cfg)
	require.NoError(t, err)

	// Oldest four outcomes rotated out, one new loss appended.
	rotated := append(append([]models.Outcome{}, full[4:]...), models.Outcome{
		ID: "o", AccountID: "acc", Seq: 12, Multiplier: decimal.NewFromInt(1), Timestamp: t0.Add(11 * time.Second),
	})
	res, err := Learn(rotated, first.Book, cfg)
	require.NoError(t, err)

	st := res.Book.Stats["GGGGGG"]
	assert.Equal(t, 6, st.Occurrences)
	assert.Equal(t, 5, st.Wins)
}

func TestLearn_AccumulateRequiresSequenceNumbers(t *testing.T) {
	cfg := cfgWith(func(c *Config) { c.MergePolicy = MergeAccumulate })
	h := history(repeat("W", 8))
	h[3].Seq = 0

	_, err := Learn(h, models.NewPatternBook(), cfg)
	assert.Error(t, err)
}

func TestLearn_SortsUnorderedHistory(t *testing.T) {
	cfg := cfgWith(func(c *Config) { c.PatternLength = 2; c.MinOccurrences = 1 })
	h := history("WWL")
	h[0], h[2] = h[2], h[0]

	res, err := Learn(h, models.NewPatternBook(), cfg)
	require.NoError(t, err)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, models.PatternKey("GG"), res.Ranked[0].Key)
	assert.Equal(t, 0, res.Ranked[0].Wins)
}

func TestLearn_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero length", func(c *Config) { c.PatternLength = 0 }},
		{"zero min occurrences", func(c *Config) { c.MinOccurrences = 0 }},
		{"negative top n", func(c *Config) { c.TopN = -1 }},
		{"threshold above 1", func(c *Config) { c.TableThreshold = 1.1 }},
		{"avoid above enter", func(c *Config) { c.AvoidThreshold = 0.9 }},
		{"unknown policy", func(c *Config) { c.MergePolicy = "sometimes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Learn(history(repeat("W", 20)), models.NewPatternBook(), cfgWith(tt.mutate))
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}
}

func bookWith(key models.PatternKey, occ, wins int) models.PatternBook {
	b := models.NewPatternBook()
	b.Stats[key] = models.PatternStat{Key: key, Occurrences: occ, Wins: wins}
	return b
}

func TestSuggest_Bands(t *testing.T) {
	window := history("WWWWWW")
	now := t0.Add(time.Hour)

	tests := []struct {
		name       string
		occ, wins  int
		want       models.SuggestedOutcome
		confidence float64
	}{
		{"enter", 5, 4, models.OutcomeEnter, 0.8},
		{"enter at boundary", 20, 15, models.OutcomeEnter, 0.75},
		{"avoid", 5, 1, models.OutcomeAvoid, 0.8},
		{"avoid at boundary", 20, 7, models.OutcomeAvoid, 0.65},
		{"wait above half", 5, 3, models.OutcomeWait, 0.1},
		{"wait at half", 10, 5, models.OutcomeWait, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Suggest(window, bookWith("GGGGGG", tt.occ, tt.wins), DefaultConfig(), now)
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.Equal(t, tt.want, s.Outcome)
			assert.InDelta(t, tt.confidence, s.Confidence, 1e-9)
			assert.Equal(t, models.PatternKey("GGGGGG"), s.TriggeringPattern)
			assert.Equal(t, now, s.Timestamp)
			assert.Nil(t, s.ResolvedOutcome)
		})
	}
}

func TestSuggest_NoSuggestion(t *testing.T) {
	cfg := DefaultConfig()

	s, err := Suggest(history("WWWWW"), bookWith("GGGGG", 50, 50), cfg, t0)
	require.NoError(t, err)
	assert.Nil(t, s, "short window")

	s, err = Suggest(history("WWWWWW"), bookWith("BBBBBB", 50, 50), cfg, t0)
	require.NoError(t, err)
	assert.Nil(t, s, "unknown key")

	s, err = Suggest(history("WWWWWW"), bookWith("GGGGGG", 4, 4), cfg, t0)
	require.NoError(t, err)
	assert.Nil(t, s, "below min occurrences")
}

func TestSuggest_UsesMostRecentWindow(t *testing.T) {
	s, err := Suggest(history("LLLLWWWWWW"), bookWith("GGGGGG", 5, 5), DefaultConfig(), t0)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, models.PatternKey("GGGGGG"), s.TriggeringPattern)
}

func TestSuggest_Deterministic(t *testing.T) {
	window := history("WLWLWW")
	book := bookWith("GBGBGG", 9, 5)

	a, err := Suggest(window, book, DefaultConfig(), t0)
	require.NoError(t, err)
	b, err := Suggest(window, book, DefaultConfig(), t0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSuggest_InvalidConfig(t *testing.T) {
	_, err := Suggest(history("WWWWWW"), models.NewPatternBook(), cfgWith(func(c *Config) { c.PatternLength = 0 }), t0)
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
}
