package badger

import "fmt"

// Key prefixes for different data types
const (
	recordPrefix     = "segrec"
	checkpointPrefix = "ingchk"
)

// Tenant IDs are length-prefixed so that a tenant's key range can never
// contain keys of another tenant whose ID it is a prefix of.

// makeTenantPrefix generates the key prefix shared by all records of a tenant.
// Format: prefix:len:tenant:
func makeTenantPrefix(tenantID string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:", recordPrefix, len(tenantID), tenantID))
}

// makeRecordKey generates a key for a record.
// Format: prefix:len:tenant:id
func makeRecordKey(tenantID, id string) []byte {
	return append(makeTenantPrefix(tenantID), id...)
}

// makeAllRecordsPrefix generates the prefix shared by every record.
func makeAllRecordsPrefix() []byte {
	return []byte(recordPrefix + ":")
}

// makeCheckpointKey generates a key for an ingestion checkpoint.
// Format: prefix:len:tenant:source
func makeCheckpointKey(tenantID, source string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:%s", checkpointPrefix, len(tenantID), tenantID, source))
}
