package domain

import "sort"

// ReactionKind описывает реакцию на фильм.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
	ReactionHeart   ReactionKind = "heart"
	ReactionLaugh   ReactionKind = "laugh"
	ReactionPoop    ReactionKind = "poop"
)

// ReactionKinds задаёт набор реакций и порядок кнопок.
var ReactionKinds = []ReactionKind{ReactionLike, ReactionDislike, ReactionHeart, ReactionLaugh, ReactionPoop}

var reactionEmoji = map[ReactionKind]string{
	ReactionLike:    "👍",
	ReactionDislike: "👎",
	ReactionHeart:   "❤️",
	ReactionLaugh:   "😂",
	ReactionPoop:    "💩",
}

// Emoji возвращает символ реакции для кнопок.
func (k ReactionKind) Emoji() string {
	return reactionEmoji[k]
}

// Valid сообщает, входит ли реакция в фиксированный набор.
func (k ReactionKind) Valid() bool {
	_, ok := reactionEmoji[k]
	return ok
}

// ReactionRecord хранит множества пользователей по каждой реакции одного фильма.
type ReactionRecord struct {
	MovieCode string
	Members   map[ReactionKind]map[int64]struct{}
	Version   int64
}

// NewReactionRecord создаёт запись с пустыми множествами для всех реакций.
func NewReactionRecord(movieCode string) ReactionRecord {
	rec := ReactionRecord{MovieCode: movieCode, Members: make(map[ReactionKind]map[int64]struct{}, len(ReactionKinds))}
	for _, kind := range ReactionKinds {
		rec.Members[kind] = make(map[int64]struct{})
	}
	return rec
}

// Has сообщает, отмечен ли пользователь в реакции kind.
func (r ReactionRecord) Has(kind ReactionKind, userID int64) bool {
	_, ok := r.Members[kind][userID]
	return ok
}

// Counts возвращает размер каждого множества.
func (r ReactionRecord) Counts() ReactionCounts {
	counts := make(ReactionCounts, len(ReactionKinds))
	for _, kind := range ReactionKinds {
		counts[kind] = len(r.Members[kind])
	}
	return counts
}

// UserIDs возвращает отсортированный список участников реакции, удобный для сериализации.
func (r ReactionRecord) UserIDs(kind ReactionKind) []int64 {
	ids := make([]int64, 0, len(r.Members[kind]))
	for id := range r.Members[kind] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReactionCounts — количество пользователей по каждой реакции.
type ReactionCounts map[ReactionKind]int
