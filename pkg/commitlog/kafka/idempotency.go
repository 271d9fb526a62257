package kafka

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// idDedupe remembers event ids that were applied so a redelivered message
// after a rebalance is not committed twice.
type idDedupe struct {
	lru *lru.Cache[string, struct{}]
}

func newIDDedupe(size int) *idDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, struct{}](size)
	return &idDedupe{lru: c}
}

func (d *idDedupe) seen(id string) bool { return d.lru.Contains(id) }

func (d *idDedupe) mark(id string) { d.lru.Add(id, struct{}{}) }
