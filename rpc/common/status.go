package common

import "github.com/ValentinKolb/dCfg/lib/db"

// NodeStatus is the payload (Meta, as json) of a status response
type NodeStatus struct {
	ReplicaID uint64          `json:"replica_id"`
	Mode      ServerMode      `json:"mode"`
	Role      string          `json:"role"`
	Epoch     uint64          `json:"epoch"`
	LeaderID  uint64          `json:"leader_id,omitempty"`
	InQuorum  bool            `json:"in_quorum"`
	Ticking   bool            `json:"ticking"`
	Entries   uint64          `json:"entries"`
	Engine    db.DatabaseInfo `json:"engine"`
}
