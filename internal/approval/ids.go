package approval

import (
	"fmt"
	"sync"
	"time"
)

// IDGenerator выдает человекочитаемые ID заявок формата
// YYYYMMDDHHMMSSXXX (например 20260131143022001): дата-время до секунды
// плюс трехзначный номер внутри секунды. Оператору в консоли такой ID
// говорит больше, чем UUID.
type IDGenerator struct {
	mu            sync.Mutex
	currentSecond int64
	sequence      int

	// Подменяется в тестах
	now func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next возвращает следующий ID. При исчерпании 999 номеров в секунду
// ждет начала следующей.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := g.now()
		second := now.Unix()

		if second != g.currentSecond {
			g.currentSecond = second
			g.sequence = 0
		}

		g.sequence++
		if g.sequence <= 999 {
			return fmt.Sprintf("%s%03d", now.Format("20060102150405"), g.sequence)
		}

		// Секунда исчерпана
		g.mu.Unlock()
		time.Sleep(time.Until(time.Unix(second+1, 0)))
		g.mu.Lock()
	}
}
