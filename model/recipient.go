package model

import "time"

const (
	//recipient statuses
	PENDING string = "PENDING"
	SENDING        = "SENDING"
	SENT           = "SENT"
	FAILED         = "FAILED"
	SKIPPED        = "SKIPPED"

	//send attempt outcomes
	OK   = "OK"
	FAIL = "FAIL"
)

type Recipient struct {
	Id        uint32 `storm:"id,increment"`
	BatchId   uint32 `storm:"index"`
	Number    string `storm:"index"`
	Name      string
	Status    string
	Channel   string
	CreatedAt time.Time `storm:"index"`
}
