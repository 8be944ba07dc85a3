package repo

import (
	"encoding/json"
	"fmt"

	"tg-movie-bot/internal/domain"
)

// Реакции и состояние диалога хранятся как JSON в обоих хранилищах.

func encodeState(state domain.ConversationState) ([]byte, error) {
	return json.Marshal(state)
}

func decodeState(data []byte) (domain.ConversationState, error) {
	var state domain.ConversationState
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.ConversationState{}, fmt.Errorf("состояние диалога: %w", err)
	}
	return state, nil
}

func encodeMembers(rec domain.ReactionRecord) ([]byte, error) {
	out := make(map[domain.ReactionKind][]int64, len(domain.ReactionKinds))
	for _, kind := range domain.ReactionKinds {
		out[kind] = rec.UserIDs(kind)
	}
	return json.Marshal(out)
}

func decodeMembers(movieCode string, data []byte, version int64) (domain.ReactionRecord, error) {
	rec := domain.NewReactionRecord(movieCode)
	rec.Version = version
	if len(data) == 0 {
		return rec, nil
	}
	var raw map[domain.ReactionKind][]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.ReactionRecord{}, fmt.Errorf("реакции %s: %w", movieCode, err)
	}
	for kind, ids := range raw {
		if !kind.Valid() {
			continue
		}
		for _, id := range ids {
			rec.Members[kind][id] = struct{}{}
		}
	}
	return rec, nil
}

func encodeIDs(ids []int64) ([]byte, error) {
	if ids == nil {
		ids = []int64{}
	}
	return json.Marshal(ids)
}

func decodeIDs(data []byte) ([]int64, error) {
	var ids []int64
	if len(data) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
