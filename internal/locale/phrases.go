package locale

import (
	"github.com/goodsign/monday"
	"golang.org/x/text/language"
)

type unit int

const (
	unitYear unit = iota
	unitMonth
	unitWeek
	unitDay
	unitHour
	unitMinute
	unitSecond
	unitCount
)

// Seconds per unit, with the month and year approximations used by
// CLDR-style relative time rendering.
var unitSeconds = [unitCount]float64{
	unitYear:   3600 * 24 * 365,
	unitMonth:  3600 * 24 * 30,
	unitWeek:   3600 * 24 * 7,
	unitDay:    3600 * 24,
	unitHour:   3600,
	unitMinute: 60,
	unitSecond: 1,
}

// forms holds the {one, other} plural variants.
type forms [2]string

type layouts struct {
	monday monday.Locale
	date   string
	clock  string
	// join combines the formatted date (1) and time (2).
	join string
}

type phrases struct {
	now    string
	future [unitCount]forms
	past   [unitCount]forms
	layout layouts
}

var table = map[language.Tag]phrases{
	language.English: {
		now: "just now",
		future: [unitCount]forms{
			{"in %d year", "in %d years"},
			{"in %d month", "in %d months"},
			{"in %d week", "in %d weeks"},
			{"in %d day", "in %d days"},
			{"in %d hour", "in %d hours"},
			{"in %d minute", "in %d minutes"},
			{"in %d second", "in %d seconds"},
		},
		past: [unitCount]forms{
			{"%d year ago", "%d years ago"},
			{"%d month ago", "%d months ago"},
			{"%d week ago", "%d weeks ago"},
			{"%d day ago", "%d days ago"},
			{"%d hour ago", "%d hours ago"},
			{"%d minute ago", "%d minutes ago"},
			{"%d second ago", "%d seconds ago"},
		},
		layout: layouts{monday: monday.LocaleEnUS, date: "Jan 2, 2006", clock: "3:04 PM", join: "%[1]s, %[2]s"},
	},
	language.Danish: {
		now: "lige nu",
		future: [unitCount]forms{
			{"om %d år", "om %d år"},
			{"om %d måned", "om %d måneder"},
			{"om %d uge", "om %d uger"},
			{"om %d dag", "om %d dage"},
			{"om %d time", "om %d timer"},
			{"om %d minut", "om %d minutter"},
			{"om %d sekund", "om %d sekunder"},
		},
		past: [unitCount]forms{
			{"for %d år siden", "for %d år siden"},
			{"for %d måned siden", "for %d måneder siden"},
			{"for %d uge siden", "for %d uger siden"},
			{"for %d dag siden", "for %d dage siden"},
			{"for %d time siden", "for %d timer siden"},
			{"for %d minut siden", "for %d minutter siden"},
			{"for %d sekund siden", "for %d sekunder siden"},
		},
		layout: layouts{monday: monday.LocaleDaDK, date: "2. Jan 2006", clock: "15.04", join: "%[1]s %[2]s"},
	},
	language.German: {
		now: "gerade eben",
		future: [unitCount]forms{
			{"in %d Jahr", "in %d Jahren"},
			{"in %d Monat", "in %d Monaten"},
			{"in %d Woche", "in %d Wochen"},
			{"in %d Tag", "in %d Tagen"},
			{"in %d Stunde", "in %d Stunden"},
			{"in %d Minute", "in %d Minuten"},
			{"in %d Sekunde", "in %d Sekunden"},
		},
		past: [unitCount]forms{
			{"vor %d Jahr", "vor %d Jahren"},
			{"vor %d Monat", "vor %d Monaten"},
			{"vor %d Woche", "vor %d Wochen"},
			{"vor %d Tag", "vor %d Tagen"},
			{"vor %d Stunde", "vor %d Stunden"},
			{"vor %d Minute", "vor %d Minuten"},
			{"vor %d Sekunde", "vor %d Sekunden"},
		},
		layout: layouts{monday: monday.LocaleDeDE, date: "02.01.2006", clock: "15:04", join: "%[1]s, %[2]s"},
	},
	language.Swedish: {
		now: "just nu",
		future: [unitCount]forms{
			{"om %d år", "om %d år"},
			{"om %d månad", "om %d månader"},
			{"om %d vecka", "om %d veckor"},
			{"om %d dag", "om %d dagar"},
			{"om %d timme", "om %d timmar"},
			{"om %d minut", "om %d minuter"},
			{"om %d sekund", "om %d sekunder"},
		},
		past: [unitCount]forms{
			{"för %d år sedan", "för %d år sedan"},
			{"för %d månad sedan", "för %d månader sedan"},
			{"för %d vecka sedan", "för %d veckor sedan"},
			{"för %d dag sedan", "för %d dagar sedan"},
			{"för %d timme sedan", "för %d timmar sedan"},
			{"för %d minut sedan", "för %d minuter sedan"},
			{"för %d sekund sedan", "för %d sekunder sedan"},
		},
		layout: layouts{monday: monday.LocaleSvSE, date: "2 Jan 2006", clock: "15:04", join: "%[1]s %[2]s"},
	},
	language.Norwegian: {
		now: "nå nettopp",
		future: [unitCount]forms{
			{"om %d år", "om %d år"},
			{"om %d måned", "om %d måneder"},
			{"om %d uke", "om %d uker"},
			{"om %d døgn", "om %d døgn"},
			{"om %d time", "om %d timer"},
			{"om %d minutt", "om %d minutter"},
			{"om %d sekund", "om %d sekunder"},
		},
		past: [unitCount]forms{
			{"for %d år siden", "for %d år siden"},
			{"for %d måned siden", "for %d måneder siden"},
			{"for %d uke siden", "for %d uker siden"},
			{"for %d døgn siden", "for %d døgn siden"},
			{"for %d time siden", "for %d timer siden"},
			{"for %d minutt siden", "for %d minutter siden"},
			{"for %d sekund siden", "for %d sekunder siden"},
		},
		layout: layouts{monday: monday.LocaleNbNO, date: "2. Jan 2006", clock: "15:04", join: "%[1]s, %[2]s"},
	},
	language.French: {
		now: "maintenant",
		future: [unitCount]forms{
			{"dans %d an", "dans %d ans"},
			{"dans %d mois", "dans %d mois"},
			{"dans %d semaine", "dans %d semaines"},
			{"dans %d jour", "dans %d jours"},
			{"dans %d heure", "dans %d heures"},
			{"dans %d minute", "dans %d minutes"},
			{"dans %d seconde", "dans %d secondes"},
		},
		past: [unitCount]forms{
			{"il y a %d an", "il y a %d ans"},
			{"il y a %d mois", "il y a %d mois"},
			{"il y a %d semaine", "il y a %d semaines"},
			{"il y a %d jour", "il y a %d jours"},
			{"il y a %d heure", "il y a %d heures"},
			{"il y a %d minute", "il y a %d minutes"},
			{"il y a %d seconde", "il y a %d secondes"},
		},
		layout: layouts{monday: monday.LocaleFrFR, date: "2 Jan 2006", clock: "15:04", join: "%[1]s %[2]s"},
	},
}
