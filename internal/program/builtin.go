package program

// ChildTemplate is the national child immunization schedule. Offsets follow
// the 6/10/14 week, 9, 12 and 15 month visits.
func ChildTemplate() Template {
	return New(Child,
		Entry{Name: "BCG", Label: "BCG", Anchor: Origin, Terminal: true},
		Entry{Name: "OPV1", Label: "OPV first dose", Anchor: Origin, Days: 42},
		Entry{Name: "PENTA1", Label: "DPT-HepB-Hib first dose", Anchor: Origin, Days: 42},
		Entry{Name: "PCV1", Label: "Pneumococcal first dose", Anchor: Origin, Days: 42},
		Entry{Name: "ROTA1", Label: "Rotavirus first dose", Anchor: Origin, Days: 42},
		Entry{Name: "FIPV1", Label: "Fractional IPV first dose", Anchor: Origin, Days: 42},
		Entry{Name: "OPV2", Label: "OPV second dose", Anchor: "OPV1", Days: 28},
		Entry{Name: "PENTA2", Label: "DPT-HepB-Hib second dose", Anchor: "PENTA1", Days: 28},
		Entry{Name: "PCV2", Label: "Pneumococcal second dose", Anchor: "PCV1", Days: 28},
		Entry{Name: "ROTA2", Label: "Rotavirus second dose", Anchor: "ROTA1", Days: 28, Terminal: true},
		Entry{Name: "OPV3", Label: "OPV third dose", Anchor: "OPV2", Days: 28, Terminal: true},
		Entry{Name: "PENTA3", Label: "DPT-HepB-Hib third dose", Anchor: "PENTA2", Days: 28, Terminal: true},
		Entry{Name: "FIPV2", Label: "Fractional IPV second dose", Anchor: "FIPV1", Days: 56, Terminal: true},
		Entry{Name: "PCV3", Label: "Pneumococcal booster", Anchor: Origin, Days: 270, Terminal: true},
		Entry{Name: "MR1", Label: "Measles-Rubella first dose", Anchor: Origin, Days: 270},
		Entry{Name: "JE", Label: "Japanese Encephalitis", Anchor: Origin, Days: 365, Terminal: true},
		Entry{Name: "MR2", Label: "Measles-Rubella second dose", Anchor: Origin, Days: 450, Terminal: true},
	)
}

// MaternalTDTemplate is the tetanus-diphtheria series for pregnant patients.
// TD1 is given on clinical judgment and has no computed date.
func MaternalTDTemplate() Template {
	return New(MaternalTD,
		Entry{Name: "TD1", Label: "Td first dose", Manual: true},
		Entry{Name: "TD2", Label: "Td second dose", Anchor: "TD1", Days: 28, Terminal: true},
		Entry{Name: "BOOSTER", Label: "Td booster", Anchor: "TD2", Months: 6},
	)
}

// RabiesTemplate is the post-exposure prophylaxis series. D7 is measured from
// D3, not from exposure; D14 and D28 exist only for the intramuscular
// regimen, which is complete only once D28 is given as well.
func RabiesTemplate() Template {
	return New(Rabies,
		Entry{Name: "D0", Label: "Day 0", Anchor: Origin},
		Entry{Name: "D3", Label: "Day 3", Anchor: Origin, Days: 3},
		Entry{Name: "D7", Label: "Day 7", Anchor: "D3", Days: 4, Terminal: true},
		Entry{Name: "D14", Label: "Day 14", Anchor: Origin, Days: 14,
			Regimens: []Regimen{Intramuscular}},
		Entry{Name: "D28", Label: "Day 28", Anchor: Origin, Days: 28, Terminal: true,
			Regimens: []Regimen{Intramuscular}},
	)
}
