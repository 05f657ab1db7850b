package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

// InspectRow is one device record rendered on the debug page.
type InspectRow struct {
	Key      string
	DeviceID string
	UserID   string
	Type     string
	Name     string
	Active   bool
	LastSeen string
}

// StatsProvider supplies the counters shown at the top of the page,
// typically a metrics snapshot plus queue depths.
type StatsProvider func() map[string]any

type pageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a human-readable dump of the device store on a
// side port. Development aid only; never exposed in production configs.
func StartDebugServer(db *badger.DB, port int, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "device:"
		}

		data := pageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapDeviceRow(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

func mapDeviceRow(key string, val []byte) InspectRow {
	row := InspectRow{Key: key}

	var device struct {
		ID         string `json:"id"`
		UserID     string `json:"userId"`
		Type       string `json:"type"`
		Name       string `json:"name"`
		Active     bool   `json:"active"`
		LastSeenAt string `json:"lastSeenAt"`
	}
	if err := json.Unmarshal(val, &device); err != nil {
		row.Name = fmt.Sprintf("unreadable (%d bytes)", len(val))
		return row
	}

	row.DeviceID = device.ID
	if len(row.DeviceID) > 8 {
		row.DeviceID = row.DeviceID[:8]
	}
	row.UserID = device.UserID
	row.Type = device.Type
	row.Name = device.Name
	row.Active = device.Active
	row.LastSeen = device.LastSeenAt
	return row
}
