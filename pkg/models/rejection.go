package models

// RejectionReason names an expected business outcome that stops a use case.
// Rejections are returned to callers, never raised.
type RejectionReason string

const (
	RejectionNone                  RejectionReason = ""
	RejectionPlanNotFound          RejectionReason = "plan_not_found"
	RejectionDraftNotFound         RejectionReason = "draft_not_found"
	RejectionPlanInactive          RejectionReason = "plan_inactive"
	RejectionPlanNotApproved       RejectionReason = "plan_not_approved"
	RejectionPlanAlreadyActive     RejectionReason = "plan_already_active"
	RejectionPlanNotRejected       RejectionReason = "plan_not_rejected"
	RejectionPlanNotExpired        RejectionReason = "plan_not_expired"
	RejectionPlannerNotFound       RejectionReason = "planner_not_found"
	RejectionNotPlanner            RejectionReason = "requester_is_not_planner"
	RejectionInvalidAmount         RejectionReason = "invalid_amount"
	RejectionInvalidTimeframe      RejectionReason = "invalid_timeframe"
	RejectionNegativeCosts         RejectionReason = "negative_costs"
	RejectionBuyerNotFound         RejectionReason = "buyer_not_found"
	RejectionBuyerIsPlanner        RejectionReason = "buyer_is_planner"
	RejectionInvalidPurpose        RejectionReason = "invalid_purpose"
	RejectionCantBuyPublicServices RejectionReason = "company_cant_buy_public_services"
	RejectionInsufficientBalance   RejectionReason = "insufficient_balance"
	RejectionCooperationNotFound   RejectionReason = "cooperation_not_found"
	RejectionCompanyNotFound       RejectionReason = "company_not_found"
	RejectionPublicServicePlan     RejectionReason = "public_service_plan"
	RejectionAlreadyCooperating    RejectionReason = "plan_already_cooperating"
	RejectionAlreadyRequested      RejectionReason = "cooperation_already_requested"
	RejectionNotRequested          RejectionReason = "cooperation_not_requested"
	RejectionNotCoordinator        RejectionReason = "requester_is_not_coordinator"
	RejectionNotCooperating        RejectionReason = "plan_not_in_cooperation"
	RejectionApprovalDenied        RejectionReason = "approval_denied"
)
