package download

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Plugin is one row of the published plugin list.
type Plugin struct {
	FileName         string
	ShortDescription string
	LongDescription  string
	DownloadPath     string
	Incompatible     []string
}

// ParsePluginList reads the CSV plugin list. A header row starting with
// "fileName" is skipped, as are blank and short rows.
func ParsePluginList(data []byte) ([]Plugin, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []Plugin
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse plugin list: %w", err)
		}
		if len(rec) < 4 || strings.EqualFold(rec[0], "fileName") {
			continue
		}
		p := Plugin{
			FileName:         strings.TrimSpace(rec[0]),
			ShortDescription: rec[1],
			LongDescription:  rec[2],
			DownloadPath:     strings.TrimSpace(rec[3]),
		}
		if len(rec) > 4 {
			for _, name := range strings.Split(rec[4], ",") {
				if name = strings.TrimSpace(name); name != "" {
					p.Incompatible = append(p.Incompatible, name)
				}
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// PluginList fetches and parses the plugin list at url.
func (c *Client) PluginList(ctx context.Context, url string) ([]Plugin, error) {
	data, err := c.ToBuffer(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParsePluginList(data)
}
