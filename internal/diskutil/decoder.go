package diskutil

import (
	"errors"
	"fmt"
	"io"

	"github.com/prowarehouse/macos-utilities/internal/diskutil/types"

	"howett.net/plist"
)

// snippetLength is the maximum number of raw bytes quoted in a ParseError.
const snippetLength = 120

// Decoder outlines the functionality necessary for decoding plist output from the macOS disk tools.
type Decoder interface {
	// DecodeSystemPartitions decodes the output of "diskutil list -plist".
	DecodeSystemPartitions(reader io.ReadSeeker) (*types.SystemPartitions, error)
	// DecodeDiskInfo decodes the output of "diskutil info -plist".
	DecodeDiskInfo(reader io.ReadSeeker) (*types.DiskInfo, error)
	// DecodeCoreStorageList decodes the output of "diskutil cs list -plist".
	DecodeCoreStorageList(reader io.ReadSeeker) (*types.CoreStorageList, error)
	// DecodeImageMount decodes the output of "hdiutil mount -plist".
	DecodeImageMount(reader io.ReadSeeker) (*types.ImageMount, error)
}

// ParseError is returned when tool output cannot be decoded into a complete record. It keeps a snippet of the raw
// text so the failure can be diagnosed from logs.
type ParseError struct {
	Tool    ToolType
	Output  OutputType
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot decode %s output near %q: %v", e.Tool, e.Output, e.Snippet, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PlistDecoder is an empty struct that provides the implementation for the Decoder interface.
type PlistDecoder struct{}

// Type assertion to ensure PlistDecoder implements the Decoder interface.
var _ Decoder = (*PlistDecoder)(nil)

// DecodeSystemPartitions takes the raw plist data for all disks and partitions and decodes it into a new
// SystemPartitions struct.
func (d *PlistDecoder) DecodeSystemPartitions(reader io.ReadSeeker) (*types.SystemPartitions, error) {
	partitions := &types.SystemPartitions{}
	if err := decode(reader, ToolDiskUtil, OutputList, partitions); err != nil {
		return nil, err
	}

	for _, disk := range partitions.AllDisksAndPartitions {
		if disk.DeviceIdentifier == "" {
			return nil, newParseError(reader, ToolDiskUtil, OutputList, errors.New("disk without device identifier"))
		}
	}

	return partitions, nil
}

// DecodeDiskInfo takes the raw plist data for disk information and decodes it into a new DiskInfo struct.
func (d *PlistDecoder) DecodeDiskInfo(reader io.ReadSeeker) (*types.DiskInfo, error) {
	disk := &types.DiskInfo{}
	if err := decode(reader, ToolDiskUtil, OutputInfo, disk); err != nil {
		return nil, err
	}

	if disk.DeviceIdentifier == "" {
		return nil, newParseError(reader, ToolDiskUtil, OutputInfo, errors.New("missing DeviceIdentifier"))
	}

	return disk, nil
}

// DecodeCoreStorageList takes the raw plist data for CoreStorage logical volume groups and decodes it into a new
// CoreStorageList struct.
func (d *PlistDecoder) DecodeCoreStorageList(reader io.ReadSeeker) (*types.CoreStorageList, error) {
	groups := &types.CoreStorageList{}
	if err := decode(reader, ToolDiskUtil, OutputCoreStorageList, groups); err != nil {
		return nil, err
	}

	return groups, nil
}

// DecodeImageMount takes the raw plist data emitted while mounting a disk image and decodes it into a new
// ImageMount struct.
func (d *PlistDecoder) DecodeImageMount(reader io.ReadSeeker) (*types.ImageMount, error) {
	mount := &types.ImageMount{}
	if err := decode(reader, ToolHDIUtil, OutputMount, mount); err != nil {
		return nil, err
	}

	if len(mount.SystemEntities) == 0 {
		return nil, newParseError(reader, ToolHDIUtil, OutputMount, errors.New("no system-entities"))
	}

	return mount, nil
}

// decode runs the plist decoder over reader into v, converting failures (including panics raised by the plist
// package) into a ParseError.
func decode(reader io.ReadSeeker, tool ToolType, output OutputType, v interface{}) (err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = newParseError(reader, tool, output, fmt.Errorf("panic occurred while decoding: %v", panicErr))
		}
	}()

	if err := plist.NewDecoder(reader).Decode(v); err != nil {
		return newParseError(reader, tool, output, err)
	}

	return nil
}

// newParseError creates a ParseError quoting the start of the raw data held by reader.
func newParseError(reader io.ReadSeeker, tool ToolType, output OutputType, err error) *ParseError {
	var snippet string
	if _, seekErr := reader.Seek(0, io.SeekStart); seekErr == nil {
		buf := make([]byte, snippetLength)
		n, _ := io.ReadFull(reader, buf)
		snippet = string(buf[:n])
	}

	return &ParseError{
		Tool:    tool,
		Output:  output,
		Snippet: snippet,
		Err:     err,
	}
}
