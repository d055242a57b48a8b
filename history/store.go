package history

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/europasms/sender/log"
)

//Record is one immutable send attempt fact, stored as a single JSON line.
//Consumers must tolerate unknown or missing fields.
type Record struct {
	Ts       time.Time `json:"ts"`
	Name     string    `json:"name"`
	Number   string    `json:"number"`
	Message  string    `json:"message"`
	Flash    bool      `json:"flash"`
	Status   string    `json:"status"`
	Device   string    `json:"device"`
	Section  string    `json:"section"`
	Response string    `json:"response"`
}

type Store interface {
	//Append writes one record to the end of the store
	Append(r Record) error
	//LoadAll returns all parsable records in append order, skipping malformed lines
	LoadAll() ([]Record, error)
	//Prune drops records older than maxAgeDays, persists the survivors
	//atomically and returns them
	Prune(maxAgeDays int) ([]Record, error)
}

func NewStore(path string) Store {
	return &fileStore{path: path}
}

type fileStore struct {
	mu   sync.Mutex
	path string
}

func (s *fileStore) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(r)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	_, err = f.Write(append(line, '\n'))
	if err != nil {
		f.Close()
		return err
	}
	//flush before the engine moves on so a crash between recipients
	//never loses an already acknowledged attempt
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func (s *fileStore) LoadAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadAll()
}

func (s *fileStore) loadAll() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			//a malformed line is skipped, not fatal
			log.Warn.Println("Skipping malformed history line")
			continue
		}
		records = append(records, r)
	}

	return records, scanner.Err()
}

func (s *fileStore) Prune(maxAgeDays int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	kept := Within(records, maxAgeDays)
	if len(kept) == len(records) {
		return kept, nil
	}

	//write a complete replacement and swap it into place so a crash
	//mid-write never leaves a truncated store visible
	tmp := s.path + "." + uniuri.NewLen(8) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	for _, r := range kept {
		line, err := json.Marshal(r)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return nil, err
		}
		if _, err = f.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return nil, err
		}
	}
	if err = f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}
	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	if err = os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	return kept, nil
}

//Within filters records to the retention window, measured against each
//record's own timestamp.
func Within(records []Record, maxAgeDays int) []Record {
	if maxAgeDays <= 0 {
		return records
	}
	cutoff := time.Now().Add(-24 * time.Duration(maxAgeDays) * time.Hour)
	var kept []Record
	for _, r := range records {
		if !r.Ts.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

//LatestByNumber returns the most recent record per number. Records are
//expected in append order, so the last record scanned wins without
//comparing timestamps.
func LatestByNumber(records []Record) map[string]Record {
	latest := make(map[string]Record)
	for _, r := range records {
		if r.Number == "" {
			continue
		}
		latest[r.Number] = r
	}
	return latest
}
