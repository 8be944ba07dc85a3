package domain

// Admins — множество Telegram ID администраторов бота.
type Admins map[int64]struct{}

// NewAdmins строит множество администраторов из списка ID.
func NewAdmins(ids []int64) Admins {
	admins := make(Admins, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		admins[id] = struct{}{}
	}
	return admins
}

// Contains проверяет, является ли пользователь администратором.
func (a Admins) Contains(userID int64) bool {
	_, ok := a[userID]
	return ok
}

// IDs возвращает ID администраторов.
func (a Admins) IDs() []int64 {
	ids := make([]int64, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	return ids
}
