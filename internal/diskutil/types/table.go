package types

// ListTable is the human-readable form of "diskutil list", one block per whole disk.
type ListTable struct {
	Disks []TableDisk
}

// TableDisk is one "/dev/diskN (attributes):" block of the human-readable listing.
type TableDisk struct {
	// DevEntry is the device node heading the block (e.g. "/dev/disk0").
	DevEntry string
	// Attributes are the comma separated descriptors after the node (e.g. "internal", "physical").
	Attributes []string
	Entries    []TableEntry
}

// TableEntry is one numbered row of a TableDisk block.
type TableEntry struct {
	Index            int
	Content          string
	Name             string
	SizeValue        float64
	SizeUnit         string
	Bytes            uint64
	DeviceIdentifier string
}

// HasAttribute reports whether the block heading lists the attribute.
func (d *TableDisk) HasAttribute(attr string) bool {
	for _, a := range d.Attributes {
		if a == attr {
			return true
		}
	}

	return false
}
