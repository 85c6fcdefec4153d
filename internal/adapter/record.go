package adapter

import (
	"encoding/json"

	"github.com/stanleypendergraft/adapter-change-management/internal/servicenow"
)

// ChangeRequestRecord is the outward shape of a change request. The
// instance's number and sys_id fields travel as change_ticket_number
// and change_ticket_key; the remaining fields pass through unchanged.
type ChangeRequestRecord struct {
	ChangeTicketNumber interface{} `json:"change_ticket_number"`
	Active             interface{} `json:"active"`
	Priority           interface{} `json:"priority"`
	Description        interface{} `json:"description"`
	WorkStart          interface{} `json:"work_start"`
	WorkEnd            interface{} `json:"work_end"`
	ChangeTicketKey    interface{} `json:"change_ticket_key"`
}

func newChangeRequestRecord(raw servicenow.Record) ChangeRequestRecord {
	return ChangeRequestRecord{
		ChangeTicketNumber: raw["number"],
		Active:             raw["active"],
		Priority:           raw["priority"],
		Description:        raw["description"],
		WorkStart:          raw["work_start"],
		WorkEnd:            raw["work_end"],
		ChangeTicketKey:    raw["sys_id"],
	}
}

// escapeJSON renders v as a JSON document embedded in a JSON string,
// the form downstream consumers of adapter responses expect.
func escapeJSON(v interface{}) ([]byte, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(inner))
}

// translateList rewrites a table reply's body into the escaped change
// request list shape and reports how many records it carried. On
// success the reply's instance error message is cleared because it
// described the body that was just replaced.
func translateList(resp *servicenow.Response) (int, error) {
	var table struct {
		Result []servicenow.Record `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &table); err != nil {
		return 0, &MalformedResponseError{Op: "get", Err: err}
	}
	if table.Result == nil {
		return 0, &MalformedResponseError{Op: "get", Err: errMissingResult}
	}

	records := make([]ChangeRequestRecord, 0, len(table.Result))
	for _, raw := range table.Result {
		records = append(records, newChangeRequestRecord(raw))
	}

	body, err := escapeJSON(struct {
		Result []ChangeRequestRecord `json:"result"`
	}{Result: records})
	if err != nil {
		return 0, &MalformedResponseError{Op: "get", Err: err}
	}

	resp.Body = body
	resp.Err = ""
	return len(records), nil
}

// translateSingle rewrites a single-record reply, as returned by a
// create, into one escaped change request. Unlike list replies the
// record is not wrapped in a result envelope.
func translateSingle(resp *servicenow.Response) (ChangeRequestRecord, error) {
	var single struct {
		Result servicenow.Record `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &single); err != nil {
		return ChangeRequestRecord{}, &MalformedResponseError{Op: "post", Err: err}
	}
	if single.Result == nil {
		return ChangeRequestRecord{}, &MalformedResponseError{Op: "post", Err: errMissingResult}
	}

	record := newChangeRequestRecord(single.Result)
	body, err := escapeJSON(record)
	if err != nil {
		return ChangeRequestRecord{}, &MalformedResponseError{Op: "post", Err: err}
	}

	resp.Body = body
	resp.Err = ""
	return record, nil
}
