// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package querysvc

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/alexanderzobnin/grafana-zabbix/internal/client"
	"github.com/alexanderzobnin/grafana-zabbix/internal/metadata"
)

// AnnotationRequest scopes a trigger event query.
type AnnotationRequest struct {
	Group       string    `json:"group"`
	Host        string    `json:"host"`
	Application string    `json:"application"`
	// Trigger filters trigger names, exact or /regex/.
	Trigger          string    `json:"trigger"`
	MinSeverity      int       `json:"minSeverity"`
	ShowOK           bool      `json:"showOk"`
	HideAcknowledged bool      `json:"hideAcknowledged"`
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
}

// Annotation is one panel-ready event marker.
type Annotation struct {
	Time  int64  `json:"timestamp"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type trigger struct {
	ID          string `json:"triggerid"`
	Description string `json:"description"`
	Priority    int    `json:"priority,string"`
}

type triggerEvent struct {
	Clock        int64         `json:"clock,string"`
	ObjectID     string        `json:"objectid"`
	Value        string        `json:"value"`
	Acknowledges []acknowledge `json:"acknowledges"`
}

type acknowledge struct {
	Clock   int64  `json:"clock,string"`
	Alias   string `json:"alias"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Message string `json:"message"`
}

// Annotations returns trigger events in the range matching the
// request's severity floor, name filter and hierarchy scoping.
func (s *QueryService) Annotations(ctx context.Context, req AnnotationRequest) ([]Annotation, error) {
	nameFilter, err := metadata.ParseFilter(req.Trigger)
	if err != nil {
		return nil, err
	}

	triggers, err := s.fetchTriggers(ctx, req)
	if err != nil {
		return nil, err
	}

	byID := map[string]trigger{}
	var triggerIDs []string
	for _, t := range triggers {
		if t.Priority < req.MinSeverity {
			continue
		}
		if !nameFilter.Empty() && !nameFilter.Match(t.Description) {
			continue
		}
		byID[t.ID] = t
		triggerIDs = append(triggerIDs, t.ID)
	}
	if len(triggerIDs) == 0 {
		return nil, nil
	}

	events, err := s.fetchEvents(ctx, triggerIDs, req)
	if err != nil {
		return nil, err
	}

	var annotations []Annotation
	for _, e := range events {
		if req.HideAcknowledged && len(e.Acknowledges) > 0 {
			continue
		}
		t := byID[e.ObjectID]
		title := "OK"
		if e.Value == "1" {
			title = "Problem"
		}
		annotations = append(annotations, Annotation{
			Time:  e.Clock * 1000,
			Title: title,
			Text:  annotationText(t.Description, e.Acknowledges),
		})
	}
	return annotations, nil
}

func (s *QueryService) fetchTriggers(ctx context.Context, req AnnotationRequest) ([]trigger, error) {
	params := map[string]any{
		"output":            []string{"triggerid", "description", "priority"},
		"expandDescription": true,
	}

	if req.Group != "" {
		groupFilter, err := metadata.ParseFilter(req.Group)
		if err != nil {
			return nil, err
		}
		groups, err := s.resolver.Groups(ctx, groupFilter)
		if err != nil {
			return nil, err
		}
		params["groupids"] = entityIDs(len(groups), func(i int) string { return groups[i].ID })
	}
	if req.Host != "" {
		groupFilter, err := metadata.ParseFilter(req.Group)
		if err != nil {
			return nil, err
		}
		hostFilter, err := metadata.ParseFilter(req.Host)
		if err != nil {
			return nil, err
		}
		hosts, err := s.resolver.Hosts(ctx, groupFilter, hostFilter)
		if err != nil {
			return nil, err
		}
		params["hostids"] = entityIDs(len(hosts), func(i int) string { return hosts[i].ID })
	}
	if req.Application != "" {
		groupFilter, err := metadata.ParseFilter(req.Group)
		if err != nil {
			return nil, err
		}
		hostFilter, err := metadata.ParseFilter(req.Host)
		if err != nil {
			return nil, err
		}
		appFilter, err := metadata.ParseFilter(req.Application)
		if err != nil {
			return nil, err
		}
		apps, err := s.resolver.Apps(ctx, groupFilter, hostFilter, appFilter)
		switch {
		case client.IsMethodNotFound(err, "application"):
			// application scoping unavailable on this server version
		case err != nil:
			return nil, err
		default:
			params["applicationids"] = entityIDs(len(apps), func(i int) string { return apps[i].ID })
		}
	}

	result, err := s.session.Call(ctx, "trigger.get", params)
	if err != nil {
		return nil, err
	}
	var triggers []trigger
	err = json.Unmarshal(result, &triggers)
	return triggers, err
}

func (s *QueryService) fetchEvents(ctx context.Context, triggerIDs []string, req AnnotationRequest) ([]triggerEvent, error) {
	params := map[string]any{
		"output":              "extend",
		"objectids":           triggerIDs,
		"select_acknowledges": "extend",
		"time_from":           req.From.Unix(),
		"time_till":           req.To.Unix(),
		"sortfield":           "clock",
		"sortorder":           "ASC",
	}
	if !req.ShowOK {
		// problem events only
		params["value"] = "1"
	}
	result, err := s.session.Call(ctx, "event.get", params)
	if err != nil {
		return nil, err
	}
	var events []triggerEvent
	err = json.Unmarshal(result, &events)
	return events, err
}

func entityIDs(n int, id func(int) string) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = id(i)
	}
	return ids
}

// annotationText renders the trigger description plus, when
// acknowledgements exist, an HTML-formatted acknowledgement history
// table.
func annotationText(description string, acks []acknowledge) string {
	if len(acks) == 0 {
		return description
	}
	var b strings.Builder
	b.WriteString(description)
	b.WriteString("<br><br><b>Acknowledgements:</b><table>")
	for _, a := range acks {
		user := strings.TrimSpace(a.Name + " " + a.Surname)
		if user == "" {
			user = a.Alias
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr>",
			time.Unix(a.Clock, 0).UTC().Format("2006-01-02 15:04:05"),
			html.EscapeString(user),
			html.EscapeString(a.Message))
	}
	b.WriteString("</table>")
	return b.String()
}
