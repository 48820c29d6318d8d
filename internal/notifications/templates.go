package notifications

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/enums"
)

// Content is a rendered notification ready for any channel.
type Content struct {
	Subject string
	Body    string
	SMS     string
}

type messageTemplate struct {
	subject string
	body    *template.Template
	sms     *template.Template
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

var templates = map[enums.NotificationTemplate]messageTemplate{
	enums.NotificationProposalCreated: {
		subject: "New price proposal",
		body:    mustTemplate("proposal_created", "Hello {{.Name}},\n\nA new price of {{.Params.price_per_unit}} per unit was proposed on contract {{.ContractID}}.\nReview it in your dashboard."),
		sms:     mustTemplate("proposal_created_sms", "New price proposal ({{.Params.price_per_unit}}/unit) on contract {{.Short}}."),
	},
	enums.NotificationProposalAccepted: {
		subject: "Proposal accepted",
		body:    mustTemplate("proposal_accepted", "Hello {{.Name}},\n\nA proposal on contract {{.ContractID}} was accepted. The total of {{.Params.total_value}} is now held in escrow."),
		sms:     mustTemplate("proposal_accepted_sms", "Contract {{.Short}} accepted. {{.Params.total_value}} held in escrow."),
	},
	enums.NotificationContractSigned: {
		subject: "Contract signed",
		body:    mustTemplate("contract_signed", "Hello {{.Name}},\n\nContract {{.ContractID}} has been signed and is now active. The signed copy will be attached shortly."),
		sms:     mustTemplate("contract_signed_sms", "Contract {{.Short}} signed and active."),
	},
	enums.NotificationShipmentDelivered: {
		subject: "Shipment delivered",
		body:    mustTemplate("shipment_delivered", "Hello {{.Name}},\n\nThe buyer confirmed delivery for contract {{.ContractID}} on {{.Params.delivery_date}}. Escrow funds are being released."),
		sms:     mustTemplate("shipment_delivered_sms", "Delivery confirmed for contract {{.Short}}."),
	},
	enums.NotificationDisputeRaised: {
		subject: "Dispute raised",
		body:    mustTemplate("dispute_raised", "Hello {{.Name}},\n\nA dispute was raised on contract {{.ContractID}}. Escrow stays on hold until an administrator resolves it."),
		sms:     mustTemplate("dispute_raised_sms", "Dispute raised on contract {{.Short}}."),
	},
	enums.NotificationEscrowReleased: {
		subject: "Escrow released",
		body:    mustTemplate("escrow_released", "Hello {{.Name}},\n\n{{.Params.amount}} held for contract {{.ContractID}} has been released to you."),
		sms:     mustTemplate("escrow_released_sms", "Escrow {{.Params.amount}} released for contract {{.Short}}."),
	},
}

type renderData struct {
	Name       string
	ContractID string
	Short      string
	Params     map[string]string
}

// Render fills the named template for one recipient.
func Render(name enums.NotificationTemplate, recipientName string, contractID uuid.UUID, params map[string]string) (Content, error) {
	tmpl, ok := templates[name]
	if !ok {
		return Content{}, fmt.Errorf("unknown notification template %q", name)
	}
	if params == nil {
		params = map[string]string{}
	}
	if recipientName == "" {
		recipientName = "there"
	}
	id := contractID.String()
	data := renderData{Name: recipientName, ContractID: id, Short: id[:8], Params: params}

	var body, sms bytes.Buffer
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Content{}, fmt.Errorf("render %s body: %w", name, err)
	}
	if err := tmpl.sms.Execute(&sms, data); err != nil {
		return Content{}, fmt.Errorf("render %s sms: %w", name, err)
	}
	return Content{Subject: tmpl.subject, Body: body.String(), SMS: sms.String()}, nil
}
