// Package commands centralizes the wire event identifiers shared by the
// transport layer and the sync core as a single source of truth, the way
// models.MsgTypePresence/MsgTypeUpdate centralize message "type" strings
// in the collab-docs backend.
package commands

const (
	// Inbound, client -> server.
	Join            = "join"
	SyncWithServer  = "syncWithServer"

	// Outbound, server -> client(s).
	Error                = "error"
	RemoteUpdateIncoming = "remoteUpdateIncoming"
)

// NeedReconnect is the fixed error payload sent when a connection's
// ClientSyncState has been purged (see EditProcessor's UnknownClient path).
const NeedReconnect = "Need to re-connect!"
