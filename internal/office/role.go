// Package office owns the live window registry: the fixed role catalogue,
// per-window metadata (consent, TTL, geometry), and message routing between
// windows through the host toolkit.
package office

import (
	"fmt"
	"sort"
)

// Role is a fixed category of office window. Roles define display identity,
// default geometry, and the content path loaded into the window. The set is
// closed at compile time.
type Role string

const (
	// Core offices.
	RoleOrchestrator Role = "orchestrator"
	RoleMemory       Role = "memory"
	RoleSecurity     Role = "security"

	// Financial offices.
	RoleTrading          Role = "trading"
	RoleCrypto           Role = "crypto"
	RoleTaxAdvisor       Role = "tax_advisor"
	RoleFinancialAdvisor Role = "financial_advisor"
	RoleBanking          Role = "banking"

	// Legal and compliance.
	RoleLegal                Role = "legal"
	RoleComplianceOfficer    Role = "compliance_officer"
	RoleContractAnalyst      Role = "contract_analyst"
	RoleIntellectualProperty Role = "intellectual_property"

	// Travel and lifestyle.
	RoleTravelPlanner       Role = "travel_planner"
	RoleRestaurantConcierge Role = "restaurant_concierge"
	RoleEventCoordinator    Role = "event_coordinator"
	RolePersonalShopper     Role = "personal_shopper"

	// Health and wellness.
	RolePhysicalTrainer Role = "physical_trainer"
	RoleNutritionist    Role = "nutritionist"
	RoleSleepCoach      Role = "sleep_coach"
	RolePsychologist    Role = "psychologist"
	RoleMedicalAdvisor  Role = "medical_advisor"

	// Creative and media.
	RoleContentCreator  Role = "content_creator"
	RoleVideoEditor     Role = "video_editor"
	RoleGraphicDesigner Role = "graphic_designer"
	RoleMusicProducer   Role = "music_producer"

	// Technical.
	RoleDevOpsEngineer  Role = "devops_engineer"
	RoleDataAnalyst     Role = "data_analyst"
	RoleSecurityAnalyst Role = "security_analyst"
	RoleCloudArchitect  Role = "cloud_architect"

	// Research and education.
	RoleResearchAnalyst  Role = "research_analyst"
	RoleEducationAdvisor Role = "education_advisor"
	RoleLanguageTutor    Role = "language_tutor"
	RoleSkillCoach       Role = "skill_coach"

	// Spiritual and personal.
	RoleTarotReader     Role = "tarot_reader"
	RoleAstrologer      Role = "astrologer"
	RoleMeditationGuide Role = "meditation_guide"
	RoleLifeCoach       Role = "life_coach"

	// Home and kitchen.
	RoleKitchenManager       Role = "kitchen_manager"
	RoleHomeAutomation       Role = "home_automation"
	RoleMaintenanceScheduler Role = "maintenance_scheduler"

	// Special operations.
	RoleQuantumComputing  Role = "quantum_computing"
	RoleEmergencyResponse Role = "emergency_response"
)

type roleInfo struct {
	display string
	width   int
	height  int
	// path is the content route under the shell base URL; empty means
	// the default "/office/<role>" route.
	path string
}

// roleTable is the single source of truth for the role catalogue. Adding a
// role means one constant above and one entry here.
var roleTable = map[Role]roleInfo{
	RoleOrchestrator:         {display: "Orchestrator", width: 1400, height: 900, path: "/"},
	RoleMemory:               {display: "Memory Graph", width: 1200, height: 800, path: "/memory"},
	RoleSecurity:             {display: "Security Office", path: "/security"},
	RoleTrading:              {display: "Trading Office", width: 1600, height: 900},
	RoleCrypto:               {display: "Crypto Office", width: 1600, height: 900},
	RoleTaxAdvisor:           {display: "Tax Advisor"},
	RoleFinancialAdvisor:     {display: "Financial Advisor"},
	RoleBanking:              {display: "Banking Office"},
	RoleLegal:                {display: "Legal Office"},
	RoleComplianceOfficer:    {display: "Compliance Officer"},
	RoleContractAnalyst:      {display: "Contract Analyst"},
	RoleIntellectualProperty: {display: "IP Office"},
	RoleTravelPlanner:        {display: "Travel Planner"},
	RoleRestaurantConcierge:  {display: "Restaurant Concierge"},
	RoleEventCoordinator:     {display: "Event Coordinator"},
	RolePersonalShopper:      {display: "Personal Shopper"},
	RolePhysicalTrainer:      {display: "Physical Trainer"},
	RoleNutritionist:         {display: "Nutritionist"},
	RoleSleepCoach:           {display: "Sleep Coach"},
	RolePsychologist:         {display: "Psychologist"},
	RoleMedicalAdvisor:       {display: "Medical Advisor"},
	RoleContentCreator:       {display: "Content Creator"},
	RoleVideoEditor:          {display: "Video Editor"},
	RoleGraphicDesigner:      {display: "Graphic Designer"},
	RoleMusicProducer:        {display: "Music Producer"},
	RoleDevOpsEngineer:       {display: "DevOps Engineer"},
	RoleDataAnalyst:          {display: "Data Analyst"},
	RoleSecurityAnalyst:      {display: "Security Analyst"},
	RoleCloudArchitect:       {display: "Cloud Architect"},
	RoleResearchAnalyst:      {display: "Research Analyst"},
	RoleEducationAdvisor:     {display: "Education Advisor"},
	RoleLanguageTutor:        {display: "Language Tutor"},
	RoleSkillCoach:           {display: "Skill Coach"},
	RoleTarotReader:          {display: "Tarot Reader"},
	RoleAstrologer:           {display: "Astrologer"},
	RoleMeditationGuide:      {display: "Meditation Guide"},
	RoleLifeCoach:            {display: "Life Coach"},
	RoleKitchenManager:       {display: "Kitchen Manager"},
	RoleHomeAutomation:       {display: "Home Automation"},
	RoleMaintenanceScheduler: {display: "Maintenance Scheduler"},
	RoleQuantumComputing:     {display: "Quantum Computing", width: 1500, height: 850},
	RoleEmergencyResponse:    {display: "Emergency Response"},
}

const (
	defaultWindowWidth  = 1024
	defaultWindowHeight = 768
)

// ParseRole validates a wire-level role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleTable[r]; !ok {
		return "", fmt.Errorf("unknown office role %q", s)
	}
	return r, nil
}

// Valid reports whether the role is part of the catalogue.
func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

// DisplayName returns the role's canonical display name.
func (r Role) DisplayName() string {
	if info, ok := roleTable[r]; ok {
		return info.display
	}
	return string(r)
}

// DefaultSize returns the role's default window geometry.
func (r Role) DefaultSize() (width, height int) {
	info := roleTable[r]
	if info.width == 0 || info.height == 0 {
		return defaultWindowWidth, defaultWindowHeight
	}
	return info.width, info.height
}

// ContentURL returns the URL the role's window content loads from.
func (r Role) ContentURL(shellBaseURL string) string {
	if info, ok := roleTable[r]; ok && info.path != "" {
		return shellBaseURL + info.path
	}
	return shellBaseURL + "/office/" + string(r)
}

// Roles returns the full catalogue in stable order.
func Roles() []Role {
	out := make([]Role, 0, len(roleTable))
	for r := range roleTable {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
