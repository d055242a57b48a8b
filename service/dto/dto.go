package dto

import (
	"github.com/europasms/sender/history"
	"github.com/europasms/sender/report"
)

type Id struct {
	Id uint32 `json:"id"`
}

type Recipient struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type Message struct {
	Text       string      `json:"text"`
	Flash      bool        `json:"flash"`
	Recipients []Recipient `json:"recipients"`
	//Numbers holds free-form pasted text, parsed server-side
	Numbers string `json:"numbers,omitempty"`
}

type RecipientStatus struct {
	Number  string `json:"number"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status"`
	Channel string `json:"channel,omitempty"`
}

type BatchStatus struct {
	Id       uint32            `json:"id"`
	Text     string            `json:"text"`
	Flash    bool              `json:"flash"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Skipped  int               `json:"skipped"`
	Pending  int               `json:"pending"`
	Statuses []RecipientStatus `json:"statuses"`
}

type History struct {
	Count int              `json:"count"`
	Items []history.Record `json:"items"`
}

type Report struct {
	Channels map[string]report.ChannelStats `json:"channels"`
}

type Device struct {
	Raw       string `json:"raw"`
	Canonical string `json:"canonical"`
	Label     string `json:"label"`
	Section   string `json:"section"`
	Status    string `json:"status"`
	Number    string `json:"number,omitempty"`
}

type RawCommands struct {
	Device   string   `json:"device"`
	Commands []string `json:"commands"`
	Baud     int      `json:"baud"`
}

type RawResult struct {
	Ok       bool   `json:"ok"`
	Response string `json:"response"`
}

type ReleaseResult struct {
	Device   string `json:"device"`
	Ok       bool   `json:"ok"`
	Response string `json:"response,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}
