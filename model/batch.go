package model

import "time"

type Batch struct {
	Id        uint32 `storm:"id,increment"`
	Text      string
	Flash     bool
	CreatedAt time.Time `storm:"index"`
}
