package sources

import "fmt"

// Storage-key conventions for the raw zone. Keys are relative paths
// resolved by the fetcher against whichever backend holds the archive.

// EnrollmentKeys returns candidate keys for the monthly
// enrollment-by-plan publication, most likely layout first.
func EnrollmentKeys(year, month int) []string {
	return []string{
		fmt.Sprintf("raw/enrollment/by_plan/%d-%02d/Monthly_Report_By_Plan_%d_%02d.zip", year, month, year, month),
		fmt.Sprintf("raw/enrollment/by_plan/%d-%02d/monthly_report_by_plan_%d_%02d.zip", year, month, year, month),
	}
}

// CPSCKeys returns candidate keys for the contract/plan characteristics
// publication for a period.
func CPSCKeys(year, month int) []string {
	return []string{
		fmt.Sprintf("raw/cpsc/%d-%02d/CPSC_Enrollment_Info_%d_%02d.zip", year, month, year, month),
		fmt.Sprintf("raw/cpsc/%d-%02d/cpsc_enrollment_%d_%02d.zip", year, month, year, month),
	}
}

// CrosswalkKeys returns candidate keys for the plan crosswalk covering
// the transition into the given year.
func CrosswalkKeys(year int) []string {
	return []string{
		fmt.Sprintf("raw/crosswalks/crosswalk_%d.zip", year),
		fmt.Sprintf("raw/crosswalks/crosswalk_%d_to_%d.zip", year-1, year),
		fmt.Sprintf("raw/crosswalks/%d/plan_crosswalk.zip", year),
		fmt.Sprintf("raw/crosswalks/crosswalk_%d.xlsx", year),
	}
}

// SNPKeys returns candidate keys for the special-needs-plan roster.
func SNPKeys(year, month int) []string {
	return []string{
		fmt.Sprintf("raw/snp/%d-%02d/SNP_Comprehensive_Report_%d_%02d.zip", year, month, year, month),
		fmt.Sprintf("raw/snp/%d-%02d/snp_report_%d_%02d.zip", year, month, year, month),
	}
}

// ServiceAreaKeys returns candidate keys for the contract service-area
// publication.
func ServiceAreaKeys(year, month int) []string {
	return []string{
		fmt.Sprintf("raw/service_area/%d-%02d/MA_Cnty_SA_%d_%02d.zip", year, month, year, month),
		fmt.Sprintf("raw/service_area/%d-%02d/service_area_%d_%02d.zip", year, month, year, month),
	}
}
