package catalog

// Defaults returns the seed catalog used by ResetToDefaults
func Defaults() []Permission {
	return []Permission{
		{ID: "perm_1", Name: "Domänen-Administrator", Description: "Vollständige Kontrolle über die Domäne", Category: CategorySystem},
		{ID: "perm_2", Name: "Lokaler Administrator", Description: "Vollständige Kontrolle über lokale Systeme", Category: CategorySystem},
		{ID: "perm_3", Name: "Benutzerkonten verwalten", Description: "Benutzerkonten erstellen, ändern und löschen", Category: CategoryUser},
		{ID: "perm_4", Name: "Gruppenrichtlinien verwalten", Description: "Gruppenrichtlinien erstellen und bearbeiten", Category: CategorySystem},
		{ID: "perm_5", Name: "Dateizugriff - Lesen", Description: "Lesezugriff auf Dateien und Ordner", Category: CategoryFile},
		{ID: "perm_6", Name: "Dateizugriff - Schreiben", Description: "Schreibzugriff auf Dateien und Ordner", Category: CategoryFile},
		{ID: "perm_7", Name: "Netzwerkzugriff", Description: "Zugriff auf Netzwerkressourcen", Category: CategoryNetwork},
		{ID: "perm_8", Name: "Remote-Zugriff", Description: "Fernzugriff auf Systeme", Category: CategoryNetwork},
		{ID: "perm_9", Name: "Anwendungsinstallation", Description: "Software installieren und deinstallieren", Category: CategoryApplication},
		{ID: "perm_10", Name: "Sicherheitsrichtlinien verwalten", Description: "Sicherheitsrichtlinien konfigurieren", Category: CategorySystem},
	}
}

// InitialDefaults is the subset written when a new account is set up
func InitialDefaults() []Permission {
	return Defaults()[:5]
}
