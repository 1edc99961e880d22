// Command badger_inspect dumps the server's BadgerDB keyspace for
// debugging. It opens the store read-only, so it is safe to point at a
// live database directory.
//
//	go run ./tools -db /var/lib/realtime-core -prefix msg:
//
// Known prefixes: user:, msg:, call:. Index families (msgid:, callact:,
// callhist:) carry no values worth printing and are skipped.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/olekukonko/tablewriter"
)

// Mirrors of the storage layout in the repositories package. Kept local
// so the tool never drags server wiring into a debugging session.
type messageRecord struct {
	ID        string `cbor:"1,keyasint"`
	Sender    string `cbor:"2,keyasint"`
	Recipient string `cbor:"3,keyasint"`
	Body      string `cbor:"4,keyasint"`
	CreatedAt int64  `cbor:"5,keyasint"`
	Status    string `cbor:"6,keyasint"`
}

type callRecord struct {
	ID        string `cbor:"1,keyasint"`
	Caller    string `cbor:"2,keyasint"`
	Recipient string `cbor:"3,keyasint"`
	StartTime int64  `cbor:"4,keyasint"`
	EndTime   int64  `cbor:"5,keyasint,omitempty"`
	Status    string `cbor:"6,keyasint"`
	Reason    string `cbor:"7,keyasint,omitempty"`
}

type userRecord struct {
	Identity    string `cbor:"1,keyasint"`
	DisplayName string `cbor:"2,keyasint"`
	Online      bool   `cbor:"3,keyasint"`
	LastSeen    int64  `cbor:"4,keyasint,omitempty"`
}

var indexPrefixes = []string{"msgid:", "callact:", "callhist:"}

func main() {
	dbPath := flag.String("db", "", "path to the badger database")
	prefix := flag.String("prefix", "msg:", "key prefix to scan (user:, msg:, call:)")
	flag.Parse()

	if *dbPath == "" {
		*dbPath = os.Getenv("BADGER_FILEPATH")
	}
	if *dbPath == "" {
		log.Fatal("a database path is required (-db or BADGER_FILEPATH)")
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("opening badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "When", "Parties", "Status", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if isIndexKey(key) {
				continue
			}

			if err := item.Value(func(raw []byte) error {
				row, err := describe(key, raw)
				if err != nil {
					fmt.Printf("skipping %s: %v\n", key, err)
					return nil
				}
				table.Append(row)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func isIndexKey(key string) bool {
	for _, p := range indexPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func describe(key string, raw []byte) ([]string, error) {
	switch {
	case strings.HasPrefix(key, "msg:"):
		var rec messageRecord
		if err := cbor.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		return []string{
			shorten(key),
			"MESSAGE",
			time.Unix(0, rec.CreatedAt).UTC().Format(time.RFC3339),
			rec.Sender + " -> " + rec.Recipient,
			rec.Status,
			truncate(rec.Body, 40),
		}, nil

	case strings.HasPrefix(key, "call:"):
		var rec callRecord
		if err := cbor.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		detail := rec.Reason
		if rec.EndTime != 0 {
			duration := time.Duration(rec.EndTime - rec.StartTime)
			detail = fmt.Sprintf("%s (%s)", rec.Reason, duration.Round(time.Second))
		}
		return []string{
			shorten(key),
			"CALL",
			time.Unix(0, rec.StartTime).UTC().Format(time.RFC3339),
			rec.Caller + " -> " + rec.Recipient,
			rec.Status,
			detail,
		}, nil

	case strings.HasPrefix(key, "user:"):
		var rec userRecord
		if err := cbor.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		status := "offline"
		if rec.Online {
			status = "online"
		}
		when := ""
		if rec.LastSeen != 0 {
			when = time.Unix(0, rec.LastSeen).UTC().Format(time.RFC3339)
		}
		return []string{
			shorten(key),
			"USER",
			when,
			rec.Identity,
			status,
			rec.DisplayName,
		}, nil
	}
	return nil, fmt.Errorf("unknown record family")
}

func shorten(key string) string {
	if len(key) <= 48 {
		return key
	}
	return key[:45] + "..."
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
