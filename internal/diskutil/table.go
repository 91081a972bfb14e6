package diskutil

import (
	"bufio"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"

	"github.com/dustin/go-humanize"
)

var (
	// tableDiskExp matches the heading of a disk block, e.g. "/dev/disk0 (internal, physical):".
	tableDiskExp = regexp.MustCompile(`^(/dev/disk[0-9]+)\s*(?:\(([^)]*)\))?:\s*$`)
	// tableSizeExp matches a size column such as "500.3 GB", "1 TB" or "*2.0 TB".
	tableSizeExp = regexp.MustCompile(`[*+]?([0-9]+(?: |\.[0-9]+ ))(B|KB|MB|GB|TB)\s+(disk[0-9]+(?:s[0-9]+)*)\s*$`)
	// tableIndexExp matches the row number at the start of a partition row.
	tableIndexExp = regexp.MustCompile(`^\s*([0-9]+):`)
)

// ParseListTable parses the human-readable output of "diskutil list". Rows without a device identifier (free
// space, logical volume annotations) are skipped. An output with no disk blocks at all is rejected.
func ParseListTable(raw string) (*types.ListTable, error) {
	table := &types.ListTable{}
	var current *types.TableDisk
	nameColumn := -1

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()

		if m := tableDiskExp.FindStringSubmatch(line); m != nil {
			table.Disks = append(table.Disks, types.TableDisk{
				DevEntry:   m[1],
				Attributes: splitAttributes(m[2]),
			})
			current = &table.Disks[len(table.Disks)-1]
			nameColumn = -1
			continue
		}

		if current == nil {
			continue
		}

		// The header row tells where the left-aligned NAME column starts, TYPE is right-aligned before it.
		if strings.Contains(line, "TYPE NAME") {
			nameColumn = strings.Index(line, "NAME")
			continue
		}

		entry, ok := parseTableRow(line, nameColumn)
		if ok {
			current.Entries = append(current.Entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Tool: ToolDiskUtil, Output: OutputListTable, Snippet: snippet(raw), Err: err}
	}

	if len(table.Disks) == 0 {
		return nil, &ParseError{Tool: ToolDiskUtil, Output: OutputListTable, Snippet: snippet(raw), Err: errors.New("no disks found")}
	}

	return table, nil
}

// parseTableRow parses one numbered partition row.
func parseTableRow(line string, nameColumn int) (types.TableEntry, bool) {
	idx := tableIndexExp.FindStringSubmatchIndex(line)
	size := tableSizeExp.FindStringSubmatchIndex(line)
	if idx == nil || size == nil {
		return types.TableEntry{}, false
	}

	index, err := strconv.Atoi(line[idx[2]:idx[3]])
	if err != nil {
		return types.TableEntry{}, false
	}

	value := strings.TrimSpace(line[size[2]:size[3]])
	unit := line[size[4]:size[5]]
	number, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return types.TableEntry{}, false
	}
	bytes, err := humanize.ParseBytes(value + " " + unit)
	if err != nil {
		return types.TableEntry{}, false
	}

	// everything between the row number and the size column holds TYPE and NAME
	middleStart, middleEnd := idx[1], size[0]
	var content, name string
	if nameColumn > middleStart && nameColumn < middleEnd {
		content = strings.TrimSpace(line[middleStart:nameColumn])
		name = strings.TrimSpace(line[nameColumn:middleEnd])
	} else {
		fields := strings.Fields(line[middleStart:middleEnd])
		if len(fields) > 0 {
			content = fields[0]
			name = strings.Join(fields[1:], " ")
		}
	}

	return types.TableEntry{
		Index:            index,
		Content:          content,
		Name:             name,
		SizeValue:        number,
		SizeUnit:         unit,
		Bytes:            bytes,
		DeviceIdentifier: line[size[6]:size[7]],
	}, true
}

// splitAttributes splits the parenthesized heading attributes (e.g. "internal, physical").
func splitAttributes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var attrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			attrs = append(attrs, a)
		}
	}

	return attrs
}

// ParseInfoText extracts "Key: value" pairs from the human-readable output of "diskutil info". Keys are matched
// case-insensitively and returned as given. When no keys are given every pair is returned.
func ParseInfoText(text string, keys ...string) map[string]string {
	// Output from diskutil info should look like:
	//
	//    Device Identifier:         disk0s2
	//    Device Node:               /dev/disk0s2
	//    Volume Name:               Macintosh HD
	//    Mounted:                   Yes
	//
	extracted := map[string]string{}

	for _, line := range strings.Split(text, "\n") {
		kv := strings.SplitN(line, ":", 2)
		if len(kv) < 2 {
			continue
		}

		key, value := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if key == "" {
			continue
		}

		if len(keys) == 0 {
			extracted[key] = value
			continue
		}
		for _, k := range keys {
			if strings.EqualFold(key, k) {
				extracted[k] = value
			}
		}
	}

	return extracted
}

// snippet returns the start of raw for error messages.
func snippet(raw string) string {
	if len(raw) > snippetLength {
		return raw[:snippetLength]
	}
	return raw
}
