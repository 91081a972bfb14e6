package diskutil

import (
	"fmt"
	"strings"
)

// ToolType names the tool whose output is being parsed.
type ToolType string

const (
	ToolDiskUtil ToolType = "diskutil"
	ToolHDIUtil  ToolType = "hdiutil"
)

// OutputType names the shape of a tool's output.
type OutputType string

const (
	OutputInfo            OutputType = "info"
	OutputInfoText        OutputType = "info (text)"
	OutputList            OutputType = "list"
	OutputListTable       OutputType = "list (table)"
	OutputCoreStorageList OutputType = "cs list"
	OutputMount           OutputType = "mount"
)

// Parse decodes raw tool output into its typed record: *types.DiskInfo, *types.SystemPartitions,
// *types.ListTable, *types.CoreStorageList, *types.ImageMount, or map[string]string for text info blocks.
// Combinations the tool cannot produce are rejected.
func Parse(raw string, tool ToolType, output OutputType) (interface{}, error) {
	dec := &PlistDecoder{}
	reader := strings.NewReader(raw)

	switch tool {
	case ToolDiskUtil:
		switch output {
		case OutputInfo:
			return record(dec.DecodeDiskInfo(reader))
		case OutputInfoText:
			return ParseInfoText(raw), nil
		case OutputList:
			return record(dec.DecodeSystemPartitions(reader))
		case OutputListTable:
			return record(ParseListTable(raw))
		case OutputCoreStorageList:
			return record(dec.DecodeCoreStorageList(reader))
		}
	case ToolHDIUtil:
		if output == OutputMount {
			return record(dec.DecodeImageMount(reader))
		}
	default:
		return nil, fmt.Errorf("diskutil: unknown tool %q", tool)
	}

	return nil, fmt.Errorf("diskutil: %s does not produce %s output", tool, output)
}

// record drops typed nil pointers so failed parses return a nil interface.
func record[T any](v *T, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}
