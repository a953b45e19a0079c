package markov

import (
	"context"
	"sort"
)

// TableStats holds aggregated statistics for a single frequency table.
type TableStats struct {
	Order          int // Tokens per state
	States         int // The number of distinct states
	Transitions    int // The number of unique state->next_token links
	TotalFrequency int // The sum of all counts; the total number of trained transitions
	DeadEnds       int // States with no successors
}

// Stats returns a snapshot of statistics for the table.
func (t *Table) Stats() TableStats {
	stats := TableStats{Order: t.order, States: len(t.keys)}
	for _, key := range t.keys {
		e := t.states[key]
		if len(e.next) == 0 {
			stats.DeadEnds++
		}
		stats.Transitions += len(e.next)
		stats.TotalFrequency += e.total()
	}
	return stats
}

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models     []ModelInfo        // A list of models in the database
	Stats      map[int]ModelStats // A mapping of model ids to their stats
	VocabSize  int                // The number of unique tokens in all models' vocabularies
	PrefixSize int                // The number of unique prefixes in all models' states
}

// ModelStats holds aggregated statistics for a single stored model.
type ModelStats struct {
	States         int // The number of states recorded for the model.
	TotalChains    int // The number of unique prefix->next_token links.
	TotalFrequency int // The sum of frequencies of all links; the total number of trained transitions.
}

// Stats returns a snapshot of statistics for the entire database,
// including global counts and per-model stats.
func (s *SQLStore) Stats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.Models(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen int
	if err = s.stmtGetVocabLen.QueryRowContext(ctx).Scan(&vocabLen); err != nil {
		return nil, err
	}

	var prefixLen int
	if err = s.stmtGetPrefixLen.QueryRowContext(ctx).Scan(&prefixLen); err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats)
	for _, v := range modelInfos {
		models = append(models, v)
		var st ModelStats
		if err = s.stmtModelStates.QueryRowContext(ctx, v.Id).Scan(&st.States); err != nil {
			return nil, err
		}
		if err = s.stmtModelChains.QueryRowContext(ctx, v.Id).Scan(&st.TotalChains); err != nil {
			return nil, err
		}
		if err = s.stmtModelFreq.QueryRowContext(ctx, v.Id).Scan(&st.TotalFrequency); err != nil {
			return nil, err
		}
		modelStats[v.Id] = st
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Id < models[j].Id })

	return &DBStats{
		Models:     models,
		Stats:      modelStats,
		VocabSize:  vocabLen,
		PrefixSize: prefixLen,
	}, nil
}
