package dao

import (
	"time"

	"github.com/asdine/storm/v3/q"
	"github.com/europasms/sender/model"
)

type BatchDao interface {
	//Create creates a batch record and returns its id
	Create(text string, flash bool) (uint32, error)
	//GetOneById returns a batch by id
	GetOneById(id uint32) (model.Batch, error)
	//GetAll returns all batches
	GetAll() ([]model.Batch, error)
	//RemoveOlderThanDays removes all batches older than {days}
	RemoveOlderThanDays(days int) error
}

func NewBatchDao(db Db) BatchDao {
	return &batchDao{db: db}
}

type batchDao struct {
	db Db
}

func (d batchDao) RemoveOlderThanDays(days int) error {
	err := d.db.Select(q.Lt("CreatedAt", time.Now().Add(-24*time.Duration(days)*time.Hour))).Delete(&model.Batch{})
	if err != nil && err.Error() != "not found" {
		return err
	}
	return nil
}

func (d batchDao) GetOneById(id uint32) (batch model.Batch, err error) {
	err = d.db.One("Id", id, &batch)
	return
}

func (d batchDao) GetAll() (batches []model.Batch, err error) {
	err = d.db.All(&batches)
	return
}

func (d batchDao) Create(text string, flash bool) (uint32, error) {
	batch := &model.Batch{Text: text, Flash: flash, CreatedAt: time.Now()}
	err := d.db.Save(batch)
	return batch.Id, err
}
