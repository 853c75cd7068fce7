package model

// ActionEvent is emitted to device control when a rule's schedule fires.
type ActionEvent struct {
	RuleUID     UID   `json:"rule_uid"`
	ScenarioUID UID   `json:"scenario_uid"`
	Rings       Rings `json:"rings"`
	Filter      uint8 `json:"filter"`
}

// Notification is emitted to the remote application when a rule fires.
type Notification struct {
	RuleUID  UID `json:"rule_uid"`
	NotifUID UID `json:"notif_uid"`
}
