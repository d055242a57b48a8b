package dao

import (
	"time"

	"github.com/asdine/storm/v3/q"
	"github.com/europasms/sender/model"
)

type RecipientDao interface {
	//Create creates a recipient record in PENDING state and returns its id
	Create(batchId uint32, number, name string) (uint32, error)
	//UpdateStatus updates status and last-assigned channel of the recipient with the given id
	UpdateStatus(id uint32, status, channel string) error
	//GetAllByBatchId returns all recipients of the given batch
	GetAllByBatchId(batchId uint32) ([]model.Recipient, error)
	//GetFailedByBatchId returns the failed subset of the given batch
	GetFailedByBatchId(batchId uint32) ([]model.Recipient, error)
	//GetAll returns all recipients
	GetAll() ([]model.Recipient, error)
	//RemoveOlderThanDays removes all recipients older than {days}
	RemoveOlderThanDays(days int) error
}

func NewRecipientDao(db Db) RecipientDao {
	return &recipientDao{db: db}
}

type recipientDao struct {
	db Db
}

func (r recipientDao) RemoveOlderThanDays(days int) error {
	err := r.db.Select(q.Lt("CreatedAt", time.Now().Add(-24*time.Duration(days)*time.Hour))).Delete(&model.Recipient{})
	if err != nil && err.Error() != "not found" {
		return err
	}
	return nil
}

func (r recipientDao) Create(batchId uint32, number, name string) (uint32, error) {
	recipient := &model.Recipient{BatchId: batchId, Number: number, Name: name, Status: model.PENDING, CreatedAt: time.Now()}
	err := r.db.Save(recipient)
	return recipient.Id, err
}

func (r recipientDao) UpdateStatus(id uint32, status, channel string) error {
	var recipient model.Recipient
	err := r.db.One("Id", id, &recipient)
	if err != nil {
		return err
	}
	recipient.Status = status
	recipient.Channel = channel
	return r.db.Update(&recipient)
}

func (r recipientDao) GetAllByBatchId(batchId uint32) (recipients []model.Recipient, err error) {
	err = r.db.Find("BatchId", batchId, &recipients)
	return
}

func (r recipientDao) GetFailedByBatchId(batchId uint32) ([]model.Recipient, error) {
	var recipients []model.Recipient
	err := r.db.Select(q.Eq("BatchId", batchId), q.Eq("Status", model.FAILED)).Find(&recipients)
	if err != nil && err.Error() == "not found" {
		return nil, nil
	}
	return recipients, err
}

func (r recipientDao) GetAll() (recipients []model.Recipient, err error) {
	err = r.db.All(&recipients)
	return
}
