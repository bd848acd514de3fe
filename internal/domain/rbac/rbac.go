// Пакет rbac — вычисление эффективной роли пользователя.
// Роль никогда не хранится в учётной записи: она выводится при каждой
// проверке из членства нормализованного email в allowlist администраторов.
// Allowlist — атомарно заменяемый снимок; изменение списка меняет
// привилегии на следующем же запросе без миграции данных.
package rbac

import (
	"strings"
	"sync/atomic"
)

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// NormalizeEmail приводит email к канонической форме (trim + lowercase).
// Единственная точка нормализации: её используют credential store,
// резолвер ролей и федерация.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Allowlist — процесс-глобальный набор email администраторов.
// Чтения идут без блокировок через атомарный снимок; Replace выполняет
// единственную атомарную замену указателя, поэтому ни один запрос не
// видит частично обновлённый список.
type Allowlist struct {
	snapshot atomic.Pointer[map[string]struct{}]
}

// NewAllowlist создаёт allowlist из начального списка адресов.
func NewAllowlist(emails []string) *Allowlist {
	al := &Allowlist{}
	al.Replace(emails)
	return al
}

// Replace атомарно заменяет снимок allowlist новым набором адресов.
// Адреса нормализуются, пустые игнорируются.
func (al *Allowlist) Replace(emails []string) {
	snap := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		n := NormalizeEmail(e)
		if n != "" {
			snap[n] = struct{}{}
		}
	}
	al.snapshot.Store(&snap)
}

// Contains проверяет членство нормализованного email в текущем снимке.
func (al *Allowlist) Contains(email string) bool {
	snap := al.snapshot.Load()
	if snap == nil {
		return false
	}
	_, ok := (*snap)[NormalizeEmail(email)]
	return ok
}

// Resolve вычисляет эффективную роль для email.
// Чистая функция от email и текущего снимка allowlist: без побочных
// эффектов и без кэширования между вызовами.
func (al *Allowlist) Resolve(email string) string {
	if al.Contains(email) {
		return RoleAdmin
	}
	return RoleUser
}

// Size возвращает количество адресов в текущем снимке.
func (al *Allowlist) Size() int {
	snap := al.snapshot.Load()
	if snap == nil {
		return 0
	}
	return len(*snap)
}
