// Package knowledge answers clinic questions from reference data. Entries
// are derived from the clinic dataset at startup, optionally embedded for
// semantic retrieval, and always searchable by keyword overlap so FAQ
// answers keep working when no embedding backend is configured.
package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
)

// Entry is one answerable chunk of clinic knowledge.
type Entry struct {
	Topic    string
	Content  string
	Keywords []string
}

// DeriveEntries flattens the clinic dataset into answerable chunks.
func DeriveEntries(ds *clinicdata.Dataset) []Entry {
	if ds == nil {
		return nil
	}

	var entries []Entry
	clinic := ds.Clinic

	if len(clinic.OperatingHours) > 0 {
		days := make([]string, 0, len(clinic.OperatingHours))
		for day := range clinic.OperatingHours {
			days = append(days, day)
		}
		sort.Strings(days)
		var lines []string
		for _, day := range days {
			lines = append(lines, fmt.Sprintf("%s: %s", titleWords(day), clinic.OperatingHours[day]))
		}
		entries = append(entries, Entry{
			Topic:    "hours",
			Content:  fmt.Sprintf("%s operating hours. %s.", clinic.Name, strings.Join(lines, "; ")),
			Keywords: []string{"hours", "open", "close", "opening", "closing", "time", "weekend", "saturday", "sunday"},
		})
	}

	if clinic.Address != "" || clinic.Phone != "" {
		entries = append(entries, Entry{
			Topic:    "location",
			Content:  fmt.Sprintf("%s is located at %s. Phone: %s.", clinic.Name, clinic.Address, clinic.Phone),
			Keywords: []string{"address", "location", "located", "where", "phone", "number", "call", "directions"},
		})
	}

	for name, text := range clinic.Policies {
		entries = append(entries, Entry{
			Topic:    "policy_" + name,
			Content:  fmt.Sprintf("%s policy: %s", titleWords(strings.ReplaceAll(name, "_", " ")), text),
			Keywords: append(strings.Split(name, "_"), "policy", "policies", "fee", "charge"),
		})
	}

	if len(clinic.Services) > 0 {
		entries = append(entries, Entry{
			Topic:    "services",
			Content:  fmt.Sprintf("Services offered: %s.", strings.Join(clinic.Services, ", ")),
			Keywords: []string{"services", "offer", "provide", "treatment", "treatments", "available"},
		})
	}

	if len(clinic.InsuranceAccepted) > 0 {
		entries = append(entries, Entry{
			Topic:    "insurance",
			Content:  fmt.Sprintf("Insurance plans accepted: %s.", strings.Join(clinic.InsuranceAccepted, ", ")),
			Keywords: []string{"insurance", "insurances", "coverage", "covered", "accept", "plan", "plans"},
		})
	}

	if len(clinic.LanguagesSpoken) > 0 {
		entries = append(entries, Entry{
			Topic:    "languages",
			Content:  fmt.Sprintf("Languages spoken at the clinic: %s.", strings.Join(clinic.LanguagesSpoken, ", ")),
			Keywords: []string{"language", "languages", "speak", "spoken", "spanish", "translator", "interpreter"},
		})
	}

	if clinic.Parking != "" {
		entries = append(entries, Entry{
			Topic:    "parking",
			Content:  fmt.Sprintf("Parking: %s", clinic.Parking),
			Keywords: []string{"parking", "park", "garage", "lot", "valet"},
		})
	}

	if len(clinic.PaymentMethods) > 0 {
		entries = append(entries, Entry{
			Topic:    "payment",
			Content:  fmt.Sprintf("Accepted payment methods: %s.", strings.Join(clinic.PaymentMethods, ", ")),
			Keywords: []string{"payment", "pay", "card", "credit", "cash", "billing", "cost"},
		})
	}

	for _, t := range ds.Types {
		content := fmt.Sprintf("%s takes %d minutes and costs $%.2f.", t.Name, t.DurationMinutes, float64(t.PriceCents)/100)
		if t.Description != "" {
			content += " " + t.Description
		}
		entries = append(entries, Entry{
			Topic:    "appointment_type_" + strings.ToLower(strings.ReplaceAll(t.Name, " ", "_")),
			Content:  content,
			Keywords: append(tokenize(t.Name), "price", "cost", "long", "duration", "minutes", "appointment"),
		})
	}

	for _, d := range ds.Doctors {
		content := fmt.Sprintf("%s specializes in %s and offers: %s.", d.Name, d.Specialty, strings.Join(d.AppointmentTypes, ", "))
		if len(d.Languages) > 0 {
			content += fmt.Sprintf(" Speaks %s.", strings.Join(d.Languages, ", "))
		}
		entries = append(entries, Entry{
			Topic:    "doctor_" + d.ID,
			Content:  content,
			Keywords: append(tokenize(d.Name), "doctor", "specialist", strings.ToLower(d.Specialty)),
		})
	}

	return entries
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
